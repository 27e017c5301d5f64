package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint. The context
	// bounds the dial.
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium. Every Send leases one
// connection from the pool for exactly one request/response exchange.
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	pool      *ConnPool
	mu        sync.RWMutex // protects pool and config across Connect
}

// -----------------------------------------------------------
// Transport Factory Method
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.mu.Lock()
	old := t.pool
	t.config = config
	pool, err := NewConnPool(config.Transport.Endpoints, config.Transport.Pool, t.dial)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.pool = pool
	t.mu.Unlock()

	// Close all existing connections
	if old != nil {
		_ = old.Close()
	}

	if config.Transport.Pool.MinIdle > 0 {
		ctx := context.Background()
		if config.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
			defer cancel()
		}
		if err := pool.Warm(ctx); err != nil {
			Logger.Warningf("Failed to open %d idle connections per endpoint: %v", config.Transport.Pool.MinIdle, err)
		}
	}

	Logger.Infof("Connected to %d endpoints using %s transport (up to %d connections per endpoint)",
		len(config.Transport.Endpoints), t.connector.GetName(), pool.config.MaxPerEndpoint)

	return nil
}

func (t *clientTransport) Send(ctx context.Context, req []byte) (resp []byte, err error) {
	t.mu.RLock()
	pool, config := t.pool, t.config
	t.mu.RUnlock()

	if pool == nil {
		return nil, common.NewError(common.KindConnection, "send", fmt.Errorf("transport is not connected"))
	}

	start := time.Now()
	resp, err = t.send(ctx, pool, config, req)
	pool.metrics.observeExchange(start, err)
	return resp, err
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	pool := t.pool
	t.mu.Unlock()

	if pool == nil {
		return nil
	}
	return pool.Close()
}

// --------------------------------------------------------------------------
// Optional Interface Methods
// --------------------------------------------------------------------------

// WritePrometheus writes the transport and pool metrics to w
func (t *clientTransport) WritePrometheus(w io.Writer) {
	t.mu.RLock()
	pool := t.pool
	t.mu.RUnlock()

	if pool != nil {
		pool.metrics.WritePrometheus(w)
	}
}

// Stats returns the pool counters
func (t *clientTransport) Stats() PoolStats {
	t.mu.RLock()
	pool := t.pool
	t.mu.RUnlock()

	if pool == nil {
		return PoolStats{}
	}
	return pool.Stats()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// send leases a connection and runs the exchange. Only failures to obtain a
// connection are retried: once a request was written the server may already
// have applied it.
func (t *clientTransport) send(ctx context.Context, pool *ConnPool, config common.ClientConfig, req []byte) ([]byte, error) {
	var lastErr error

	// We always try at least once, and up to maxRetries times
	maxRetries := config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	for i := 0; i < maxRetries; i++ {
		pc, err := pool.Take(ctx)
		if err == nil {
			return exchange(ctx, pool, pc, config, req)
		}

		lastErr = err
		if errors.Is(err, common.ErrPoolClosed) || ctx.Err() != nil {
			return nil, err
		}
		Logger.Debugf("Connection attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			timer := time.NewTimer(time.Duration(jitter) * time.Millisecond)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, contextError("send", ctx.Err())
			}
			backoffMs *= 2
			pool.metrics.retries.Inc()
		}
	}

	// All attempts failed
	Logger.Warningf("Failed to obtain a connection after %d attempts: %v", maxRetries, lastErr)
	return nil, lastErr
}

// exchange writes one request frame and reads one response frame on a leased
// connection. The connection goes back to the pool only after a complete,
// well formed response; any failure discards it.
func exchange(ctx context.Context, pool *ConnPool, pc *PooledConn, config common.ClientConfig, req []byte) ([]byte, error) {
	// cancellation interrupts blocking reads and writes
	stop := context.AfterFunc(ctx, func() {
		_ = pc.SetDeadline(time.Unix(1, 0))
	})

	fail := func(err error) ([]byte, error) {
		stop()
		pool.Discard(pc)
		if ctx.Err() != nil {
			return nil, contextError("exchange", ctx.Err())
		}
		return nil, err
	}

	if err := pc.SetWriteDeadline(deadline(ctx, config.WriteTimeout)); err != nil {
		return fail(ioError("set write deadline", err))
	}
	if err := pc.SetReadDeadline(deadline(ctx, config.ReadTimeout)); err != nil {
		return fail(ioError("set read deadline", err))
	}
	if ctx.Err() != nil {
		return fail(nil)
	}

	// the bare conn keeps writev available for large frames
	if err := WriteFrame(pc.Conn, config.Protocol.Version, req); err != nil {
		return fail(err)
	}

	version, resp, err := ReadFrame(pc, config.Transport.MaxMessageSize)
	if err != nil {
		return fail(err)
	}

	if !stop() {
		// the deadline was already clobbered, the response is still complete
		pool.Discard(pc)
	} else {
		pool.Put(pc)
	}

	if config.Protocol.StrictVersion && !config.Protocol.Version.IsCompatible(version) {
		return nil, common.NewError(common.KindProtocol, "exchange",
			fmt.Errorf("server speaks version %s, client %s", version, config.Protocol.Version))
	}
	if version != config.Protocol.Version {
		Logger.Debugf("Server version %s differs from client version %s", version, config.Protocol.Version)
	}
	return resp, nil
}

// dial opens and configures a new connection, used by the pool
func (t *clientTransport) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	t.mu.RLock()
	config := t.config
	t.mu.RUnlock()

	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	conn, err := t.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}
	return conn, nil
}

// deadline returns the earlier of now+timeout and the context deadline,
// the zero time if neither is set
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

// contextError maps a finished context to a connection error
func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewError(common.KindConnection, op, fmt.Errorf("%w: %v", common.ErrTimeout, err))
	}
	return common.NewError(common.KindConnection, op, err)
}
