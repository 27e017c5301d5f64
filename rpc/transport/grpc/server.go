package grpc

import (
	"context"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

// rawService holds the handler the registered service dispatches to
type rawService struct {
	handler transport.ServerHandleFunc
}

func (s *rawService) handle(ctx context.Context, req []byte) []byte {
	addr := ""
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	return s.handler(addr, req)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pipeline", Handler: pipelineHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func pipelineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req []byte
	if err := dec(&req); err != nil {
		return nil, err
	}

	s := srv.(*rawService)
	if interceptor == nil {
		return s.handle(ctx, req), nil
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PipelineMethod}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return s.handle(ctx, req.([]byte)), nil
	})
}

// NewGRPCServer returns a gRPC server that answers batch calls with handler.
// The caller owns the server: Serve it on a listener and Stop it when done.
func NewGRPCServer(handler transport.ServerHandleFunc, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(rawCodec{}))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, &rawService{handler: handler})
	return srv
}
