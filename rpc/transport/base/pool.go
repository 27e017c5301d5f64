package base

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/semaphore"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var poolLogger = logger.GetLogger("pool")

// -----------------------------------------------------------
// Types
// -----------------------------------------------------------

// DialFunc opens a new connection to endpoint
type DialFunc func(ctx context.Context, endpoint string) (net.Conn, error)

// PooledConn is a connection leased from a ConnPool. It is owned by exactly
// one caller until it is handed back with Put or Discard.
type PooledConn struct {
	net.Conn
	ep        *endpointPool
	createdAt time.Time
	lastUsed  time.Time
	reused    bool
}

// Endpoint returns the address the connection was dialed to
func (c *PooledConn) Endpoint() string { return c.ep.endpoint }

// Reused reports whether the lease was served from an idle connection
func (c *PooledConn) Reused() bool { return c.reused }

// endpointPool holds the idle connections of one endpoint
type endpointPool struct {
	endpoint string
	slots    *semaphore.Weighted // one slot per leased connection
	mu       sync.Mutex
	idle     []*PooledConn // most recently used last
	open     int
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Open   int
	Idle   int
	Leased int
}

// ConnPool is a per-endpoint connection pool with a shared ceiling across all
// endpoints. Connections are handed out round robin across endpoints.
type ConnPool struct {
	config    common.PoolConfig
	dial      DialFunc
	endpoints []*endpointPool
	total     *semaphore.Weighted // nil without MaxTotal
	openTotal atomic.Int64
	next      atomic.Uint64
	metrics   *transportMetrics

	closeCtx  context.Context
	closeFn   context.CancelFunc
	closeOnce sync.Once
	closed    atomic.Bool
	reaperWg  sync.WaitGroup

	// replaced in tests
	now   func() time.Time
	alive func(net.Conn) bool
}

// -----------------------------------------------------------
// Factory Method
// -----------------------------------------------------------

// NewConnPool creates a pool for the given endpoints. No connection is
// opened until the first Take (or Warm).
func NewConnPool(endpoints []string, config common.PoolConfig, dial DialFunc) (*ConnPool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}
	if dial == nil {
		return nil, fmt.Errorf("no dial function provided")
	}
	if config.MaxPerEndpoint <= 0 {
		config.MaxPerEndpoint = common.DefaultMaxPerEndpoint
	}
	if config.ReapBatchSize <= 0 {
		config.ReapBatchSize = common.DefaultReapBatchSize
	}
	if config.MinIdle > config.MaxPerEndpoint {
		config.MinIdle = config.MaxPerEndpoint
	}
	if config.MaxTotal > 0 && config.MinIdle*len(endpoints) > config.MaxTotal {
		config.MinIdle = config.MaxTotal / len(endpoints)
	}

	closeCtx, closeFn := context.WithCancel(context.Background())
	p := &ConnPool{
		config:   config,
		dial:     dial,
		closeCtx: closeCtx,
		closeFn:  closeFn,
		now:      time.Now,
		alive:    connAlive,
	}
	if config.MaxTotal > 0 {
		p.total = semaphore.NewWeighted(int64(config.MaxTotal))
	}
	for _, endpoint := range endpoints {
		p.endpoints = append(p.endpoints, &endpointPool{
			endpoint: endpoint,
			slots:    semaphore.NewWeighted(int64(config.MaxPerEndpoint)),
		})
	}
	p.metrics = newTransportMetrics(p)

	if config.Reaper && config.ReapInterval > 0 {
		p.reaperWg.Add(1)
		go p.reapLoop(config.ReapInterval)
	}
	return p, nil
}

// -----------------------------------------------------------
// Checkout
// -----------------------------------------------------------

// Take leases a connection. Idle connections are checked for expiry and
// liveness before they are handed out, dead ones are closed and replaced.
// It fails with common.ErrPoolClosed once the pool is closed and with
// common.ErrTimeout if no connection becomes available within the acquire
// timeout or the context deadline.
func (p *ConnPool) Take(ctx context.Context) (*PooledConn, error) {
	if p.closed.Load() {
		return nil, common.NewError(common.KindConnection, "acquire connection", common.ErrPoolClosed)
	}
	return p.takeFrom(ctx, p.pickEndpoint())
}

func (p *ConnPool) takeFrom(ctx context.Context, ep *endpointPool) (*PooledConn, error) {
	acqCtx, cancel := p.acquireContext(ctx)
	defer cancel()

	if err := p.acquireSlot(acqCtx, ep); err != nil {
		return nil, p.acquireError(ctx, err)
	}
	if p.closed.Load() {
		p.releaseSlot(ep)
		return nil, common.NewError(common.KindConnection, "acquire connection", common.ErrPoolClosed)
	}

	if pc := p.popUsable(ep); pc != nil {
		pc.reused = true
		p.metrics.reuses.Inc()
		return pc, nil
	}

	pc, err := p.dialConn(acqCtx, ep)
	if err != nil {
		p.releaseSlot(ep)
		if p.closed.Load() {
			return nil, common.NewError(common.KindConnection, "acquire connection", common.ErrPoolClosed)
		}
		return nil, err
	}
	return pc, nil
}

// acquireContext bounds the checkout by the acquire timeout and by Close
func (p *ConnPool) acquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	var acqCtx context.Context
	var cancel context.CancelFunc
	if p.config.AcquireTimeout > 0 {
		acqCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
	} else {
		acqCtx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(p.closeCtx, cancel)
	return acqCtx, func() {
		stop()
		cancel()
	}
}

// acquireError maps a failed slot acquisition to the matching error
func (p *ConnPool) acquireError(ctx context.Context, err error) error {
	switch {
	case p.closed.Load():
		return common.NewError(common.KindConnection, "acquire connection", common.ErrPoolClosed)
	case ctx.Err() == context.Canceled:
		return common.NewError(common.KindConnection, "acquire connection", ctx.Err())
	default:
		return common.NewError(common.KindConnection, "acquire connection",
			fmt.Errorf("%w: no connection available: %v", common.ErrTimeout, err))
	}
}

func (p *ConnPool) acquireSlot(ctx context.Context, ep *endpointPool) error {
	if err := ep.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	if p.total != nil {
		if err := p.total.Acquire(ctx, 1); err != nil {
			ep.slots.Release(1)
			return err
		}
	}
	return nil
}

func (p *ConnPool) releaseSlot(ep *endpointPool) {
	if p.total != nil {
		p.total.Release(1)
	}
	ep.slots.Release(1)
}

// popUsable pops idle connections until it finds one that is neither expired
// nor closed by the peer
func (p *ConnPool) popUsable(ep *endpointPool) *PooledConn {
	for {
		ep.mu.Lock()
		n := len(ep.idle)
		if n == 0 {
			ep.mu.Unlock()
			return nil
		}
		pc := ep.idle[n-1]
		ep.idle[n-1] = nil
		ep.idle = ep.idle[:n-1]
		ep.mu.Unlock()

		if p.expired(pc, p.now()) {
			poolLogger.Debugf("Closing expired connection to %s", ep.endpoint)
			p.closeConn(pc)
			p.metrics.evictions.Inc()
			continue
		}
		if !p.alive(pc.Conn) {
			poolLogger.Debugf("Closing stale connection to %s", ep.endpoint)
			p.closeConn(pc)
			p.metrics.evictions.Inc()
			continue
		}
		return pc
	}
}

// dialConn opens a new connection, the caller holds a slot of ep
func (p *ConnPool) dialConn(ctx context.Context, ep *endpointPool) (*PooledConn, error) {
	if p.config.MaxTotal > 0 && p.openTotal.Load() >= int64(p.config.MaxTotal) {
		p.evictOldestIdle(ep)
	}

	conn, err := p.dial(ctx, ep.endpoint)
	if err != nil {
		p.metrics.dialErrors.Inc()
		return nil, ioError("dial "+ep.endpoint, err)
	}
	p.metrics.dials.Inc()

	now := p.now()
	pc := &PooledConn{Conn: conn, ep: ep, createdAt: now, lastUsed: now}

	ep.mu.Lock()
	ep.open++
	ep.mu.Unlock()
	p.openTotal.Add(1)

	poolLogger.Debugf("Opened connection to %s", ep.endpoint)
	return pc, nil
}

// evictOldestIdle closes the oldest idle connection of another endpoint to
// stay below MaxTotal open connections
func (p *ConnPool) evictOldestIdle(except *endpointPool) {
	var victim *PooledConn
	for _, ep := range p.endpoints {
		if ep == except {
			continue
		}
		ep.mu.Lock()
		if len(ep.idle) > 0 && (victim == nil || ep.idle[0].lastUsed.Before(victim.lastUsed)) {
			victim = ep.idle[0]
		}
		ep.mu.Unlock()
	}
	if victim == nil {
		return
	}

	ep := victim.ep
	ep.mu.Lock()
	for i, pc := range ep.idle {
		if pc == victim {
			ep.idle = append(ep.idle[:i], ep.idle[i+1:]...)
			ep.mu.Unlock()
			p.closeConn(victim)
			p.metrics.evictions.Inc()
			return
		}
	}
	// someone else took it in the meantime
	ep.mu.Unlock()
}

// -----------------------------------------------------------
// Return
// -----------------------------------------------------------

// Put hands a healthy connection back to the pool. Expired connections and
// connections returned after Close are closed instead.
func (p *ConnPool) Put(pc *PooledConn) {
	ep := pc.ep
	now := p.now()

	if p.config.MaxLifetime > 0 && now.Sub(pc.createdAt) > p.config.MaxLifetime {
		p.closeConn(pc)
		p.metrics.evictions.Inc()
		p.releaseSlot(ep)
		return
	}

	pc.lastUsed = now
	ep.mu.Lock()
	if p.closed.Load() {
		ep.mu.Unlock()
		p.closeConn(pc)
		p.releaseSlot(ep)
		return
	}
	ep.idle = append(ep.idle, pc)
	ep.mu.Unlock()

	p.releaseSlot(ep)
}

// Discard closes a connection that must not be reused (I/O error, timeout,
// protocol violation) and frees its slot.
func (p *ConnPool) Discard(pc *PooledConn) {
	p.closeConn(pc)
	p.metrics.discards.Inc()
	p.releaseSlot(pc.ep)
}

func (p *ConnPool) closeConn(pc *PooledConn) {
	_ = pc.Conn.Close()

	pc.ep.mu.Lock()
	pc.ep.open--
	pc.ep.mu.Unlock()
	p.openTotal.Add(-1)
}

// -----------------------------------------------------------
// Maintenance
// -----------------------------------------------------------

// Warm opens connections until every endpoint has MinIdle idle connections.
// Failures are logged and returned, the pool stays usable.
func (p *ConnPool) Warm(ctx context.Context) error {
	var firstErr error
	for _, ep := range p.endpoints {
		if err := p.fillIdle(ctx, ep); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fillIdle tops ep up to MinIdle connections without ever blocking on a slot
func (p *ConnPool) fillIdle(ctx context.Context, ep *endpointPool) error {
	for {
		ep.mu.Lock()
		missing := p.config.MinIdle - ep.open
		ep.mu.Unlock()
		if missing <= 0 || p.closed.Load() {
			return nil
		}

		if !ep.slots.TryAcquire(1) {
			return nil
		}
		if p.total != nil && !p.total.TryAcquire(1) {
			ep.slots.Release(1)
			return nil
		}

		pc, err := p.dialConn(ctx, ep)
		if err != nil {
			p.releaseSlot(ep)
			poolLogger.Warningf("Failed to open idle connection to %s: %v", ep.endpoint, err)
			return err
		}
		p.Put(pc)
	}
}

func (p *ConnPool) reapLoop(interval time.Duration) {
	defer p.reaperWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCtx.Done():
			return
		case <-ticker.C:
			if n := p.reap(); n > 0 {
				poolLogger.Debugf("Reaped %d idle connections", n)
			}
			for _, ep := range p.endpoints {
				_ = p.fillIdle(p.closeCtx, ep)
			}
		}
	}
}

// reap closes up to ReapBatchSize expired idle connections per endpoint and
// returns how many were closed
func (p *ConnPool) reap() int {
	now := p.now()
	closed := 0

	for _, ep := range p.endpoints {
		var victims []*PooledConn

		ep.mu.Lock()
		kept := ep.idle[:0]
		for _, pc := range ep.idle {
			if len(victims) < p.config.ReapBatchSize && p.expired(pc, now) {
				victims = append(victims, pc)
			} else {
				kept = append(kept, pc)
			}
		}
		for i := len(kept); i < len(ep.idle); i++ {
			ep.idle[i] = nil
		}
		ep.idle = kept
		ep.mu.Unlock()

		for _, pc := range victims {
			p.closeConn(pc)
			p.metrics.evictions.Inc()
		}
		closed += len(victims)
	}
	return closed
}

func (p *ConnPool) expired(pc *PooledConn, now time.Time) bool {
	if p.config.MaxIdleTime > 0 && now.Sub(pc.lastUsed) > p.config.MaxIdleTime {
		return true
	}
	return p.config.MaxLifetime > 0 && now.Sub(pc.createdAt) > p.config.MaxLifetime
}

// -----------------------------------------------------------
// Helper Methods
// -----------------------------------------------------------

// pickEndpoint selects the next endpoint via Round Robin
func (p *ConnPool) pickEndpoint() *endpointPool {
	if len(p.endpoints) == 1 {
		return p.endpoints[0]
	}
	return p.endpoints[p.next.Add(1)%uint64(len(p.endpoints))]
}

// Stats returns a snapshot of the pool counters
func (p *ConnPool) Stats() PoolStats {
	var s PoolStats
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		s.Open += ep.open
		s.Idle += len(ep.idle)
		ep.mu.Unlock()
	}
	s.Leased = s.Open - s.Idle
	return s
}

// Close closes all idle connections and makes pending and future checkouts
// fail with common.ErrPoolClosed. Leased connections are closed when they
// are returned.
func (p *ConnPool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeFn()

		for _, ep := range p.endpoints {
			ep.mu.Lock()
			idle := ep.idle
			ep.idle = nil
			ep.mu.Unlock()

			for _, pc := range idle {
				p.closeConn(pc)
			}
		}
		poolLogger.Debugf("Connection pool closed")
	})
	p.reaperWg.Wait()
	return nil
}
