package grpc

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"math"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("transport/grpc")

// clientTransport sends every batch as one unary call. Connection
// management, reconnects and flow control are left to grpc-go, one
// grpc.ClientConn per endpoint.
type clientTransport struct {
	config common.ClientConfig
	conns  []*grpc.ClientConn
	mu     sync.RWMutex
	next   atomic.Uint64
	closed atomic.Bool
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewGRPCClientTransport creates a new gRPC client transport
func NewGRPCClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	callOpts := []grpc.CallOption{grpc.ForceCodec(rawCodec{})}
	if config.Transport.MaxMessageSize > 0 && config.Transport.MaxMessageSize <= math.MaxInt32 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(int(config.Transport.MaxMessageSize)))
	}

	conns := make([]*grpc.ClientConn, 0, len(config.Transport.Endpoints))
	for _, endpoint := range config.Transport.Endpoints {
		conn, err := grpc.NewClient(endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(callOpts...),
		)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return common.NewError(common.KindConnection, "grpc connect", fmt.Errorf("%s: %w", endpoint, err))
		}
		conns = append(conns, conn)
	}

	t.mu.Lock()
	old := t.conns
	t.config = config
	t.conns = conns
	t.mu.Unlock()
	t.closed.Store(false)

	for _, c := range old {
		_ = c.Close()
	}

	Logger.Infof("Created gRPC channels to %d endpoints", len(conns))
	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, common.NewError(common.KindConnection, "send", common.ErrPoolClosed)
	}

	t.mu.RLock()
	conns, config := t.conns, t.config
	t.mu.RUnlock()

	if len(conns) == 0 {
		return nil, common.NewError(common.KindConnection, "send", fmt.Errorf("transport is not connected"))
	}

	// the read timeout bounds the whole call
	if _, ok := ctx.Deadline(); !ok && config.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ReadTimeout)
		defer cancel()
	}

	conn := conns[0]
	if len(conns) > 1 {
		conn = conns[t.next.Add(1)%uint64(len(conns))]
	}

	var resp []byte
	if err := conn.Invoke(ctx, PipelineMethod, req, &resp); err != nil {
		return nil, statusError(err)
	}
	if resp == nil {
		resp = []byte{}
	}
	return resp, nil
}

func (t *clientTransport) Close() error {
	t.closed.Store(true)

	t.mu.Lock()
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// statusError maps a gRPC status to the client error taxonomy
func statusError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return common.NewError(common.KindConnection, "grpc invoke", err)
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return common.NewError(common.KindConnection, "grpc invoke", fmt.Errorf("%w: %s", common.ErrTimeout, st.Message()))
	case codes.Canceled:
		return common.NewError(common.KindConnection, "grpc invoke", fmt.Errorf("%w: %s", context.Canceled, st.Message()))
	case codes.Unavailable:
		return common.NewError(common.KindConnection, "grpc invoke", errors.New(st.Message()))
	default:
		return common.NewError(common.KindProtocol, "grpc invoke", fmt.Errorf("%s: %s", st.Code(), st.Message()))
	}
}
