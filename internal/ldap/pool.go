// Package ldap provides LDAP connection pooling capabilities for efficient
// resource management and improved performance when handling concurrent
// LDAP operations.
package ldap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/ldap-manager/internal/retry"
)

// Pool is the per-server connection pool: a bounded stack of idle
// connections, versioned by an epoch that is bumped on every refresh so a
// connection checked out under a stale epoch is discarded on return instead
// of requeued. Checkout pops the most recently returned connection (LIFO),
// preferring cache-warm connections over strict fairness; waiter wakeup
// order when contention exceeds the pool size is best-effort, not a hard
// FIFO guarantee.
type Pool struct {
	server *Server

	mu       sync.Mutex
	idle     []*conn
	notify   chan struct{}
	epoch    uint64
	size     int
	settings ConnectionSettings
	closed   bool

	outstanding sync.WaitGroup
	outCount    int32
}

// NewPool creates a pool for server and performs its initial fill. A fill
// error is returned to the caller (the registry uses it to mark the server
// unhealthy at insertion) but the pool itself stays usable - a later
// refresh can heal it.
func NewPool(server *Server, settings ConnectionSettings) (*Pool, error) {
	p := &Pool{
		server:   server,
		notify:   make(chan struct{}),
		size:     settings.PoolSize,
		settings: settings,
	}

	if err := p.fill(settings); err != nil {
		return p, err
	}

	return p, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// fill sequentially dials size new connections and swaps them in as the
// pool's fresh idle stack: bump the epoch, set the size, close whatever was
// previously idle; on any per-connection error, close whatever was already
// opened and return the error without touching the live pool state.
func (p *Pool) fill(settings ConnectionSettings) error {
	size := maxInt(settings.PoolSize, 1)
	fresh := make([]*conn, 0, size)

	for i := 0; i < size; i++ {
		c, err := retry.DoWithResultConfig(context.Background(), retry.LDAPConfig(), func() (*conn, error) {
			return dial(p.server, settings)
		})
		if err != nil {
			for _, opened := range fresh {
				opened.close()
			}

			return err
		}

		fresh = append(fresh, c)
	}

	p.mu.Lock()
	old := p.idle
	p.idle = fresh
	p.epoch++
	p.size = size
	p.settings = settings
	p.wakeLocked()
	p.mu.Unlock()

	// Closing whatever was idle under the old epoch releases it; any
	// connection currently checked out is left alone and discarded on
	// return once its caller observes the epoch has moved on.
	for _, c := range old {
		c.close()
	}

	return nil
}

// Refresh rebuilds the pool against new connection settings, triggered by a
// live config change or a failure-detector recovery.
func (p *Pool) Refresh(settings ConnectionSettings) error {
	return p.fill(settings)
}

// wakeLocked wakes every waiter blocked in Checkout by closing the current
// notify channel and replacing it with a fresh one. Must be called with
// p.mu held.
func (p *Pool) wakeLocked() {
	close(p.notify)
	p.notify = make(chan struct{})
}

// Checkout waits for an idle connection: a cooperative wait, never
// busy-polling, that retries after any pool refresh or shutdown wakes it.
// It pops the most recently returned connection off the idle stack (LIFO),
// per spec: tail-pop/head-push favors cache-warm connections over strict
// fairness. The returned epoch must be passed back to Return.
func (p *Pool) Checkout(ctx context.Context) (*conn, uint64, error) {
	for {
		p.mu.Lock()

		if p.closed {
			p.mu.Unlock()

			return nil, 0, New(KindLdapConnection, "connection pool is closed")
		}

		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			epoch := p.epoch
			p.mu.Unlock()

			p.outstanding.Add(1)
			atomic.AddInt32(&p.outCount, 1)

			return c, epoch, nil
		}

		waitCh := p.notify
		p.mu.Unlock()

		select {
		case <-waitCh:
			continue
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}

// Return gives a checked-out connection back to the pool, pushing it onto
// the head of the idle stack so the next Checkout reuses it first. A
// connection issued under a stale epoch is closed instead of requeued - the
// pool was refreshed out from under its caller.
func (p *Pool) Return(c *conn, epoch uint64) {
	if c == nil {
		return
	}

	p.mu.Lock()
	stale := p.closed || epoch != p.epoch
	if !stale {
		p.idle = append(p.idle, c)
		p.wakeLocked()
	}
	p.mu.Unlock()

	atomic.AddInt32(&p.outCount, -1)
	p.outstanding.Done()

	if stale {
		c.close()
	}
}

// Discard closes a checked-out connection without returning it to the
// pool, used when the caller already knows it is unusable (e.g. a
// connection-class error occurred on it).
func (p *Pool) Discard(c *conn) {
	if c == nil {
		return
	}

	atomic.AddInt32(&p.outCount, -1)
	p.outstanding.Done()
	c.close()
}

// Shutdown waits for every checked-out connection to come back, then closes
// the pool. Used at server replacement and module unload.
func (p *Pool) Shutdown() {
	p.outstanding.Wait()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	idle := p.idle
	p.idle = nil
	p.wakeLocked()
	p.mu.Unlock()

	for _, c := range idle {
		c.close()
	}

	log.Debug().Str("server", p.server.HostString()).Msg("connection pool shut down")
}

// Stats reports point-in-time pool occupancy.
type Stats struct {
	Idle       int
	CheckedOut int32
	Size       int
	Epoch      uint64
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Idle:       len(p.idle),
		CheckedOut: atomic.LoadInt32(&p.outCount),
		Size:       p.size,
		Epoch:      p.epoch,
	}
}
