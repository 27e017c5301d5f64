package grpc

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/grpc/stats"
)

type peerKey struct{}

// connStats reports the end of every client connection to onClose
type connStats struct {
	onClose func(peer string)
}

// WithDisconnectHandler returns a server option that calls handler with the
// remote address of every connection that ends
func WithDisconnectHandler(handler func(peer string)) grpc.ServerOption {
	return grpc.StatsHandler(&connStats{onClose: handler})
}

func (h *connStats) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context {
	return ctx
}

func (h *connStats) HandleRPC(context.Context, stats.RPCStats) {}

func (h *connStats) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	if info == nil || info.RemoteAddr == nil {
		return ctx
	}
	return context.WithValue(ctx, peerKey{}, info.RemoteAddr.String())
}

func (h *connStats) HandleConn(ctx context.Context, s stats.ConnStats) {
	if _, ok := s.(*stats.ConnEnd); !ok {
		return
	}
	if peer, ok := ctx.Value(peerKey{}).(string); ok {
		h.onClose(peer)
	}
}
