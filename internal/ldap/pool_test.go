package ldap

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn builds a *conn with no underlying *goldap.Conn, usable anywhere
// the pool only cares about identity and lifecycle bookkeeping, not actual
// LDAP traffic.
func fakeConn() *conn {
	return &conn{id: uuid.NewString()}
}

// testPool builds a Pool around a given server without dialing real
// connections, for exercising checkout/return/refresh bookkeeping directly.
func testPool(t *testing.T, size int) *Pool {
	t.Helper()

	u, err := url.Parse("ldap://directory.example.com")
	require.NoError(t, err)

	srv := newServer(0, u)

	p := &Pool{
		server: srv,
		notify: make(chan struct{}),
		size:   size,
	}

	for i := 0; i < size; i++ {
		p.idle = append(p.idle, fakeConn())
	}

	return p
}

func TestPoolCheckoutReturn(t *testing.T) {
	p := testPool(t, 2)

	ctx := context.Background()

	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.NotNil(t, c)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, int32(1), stats.CheckedOut)

	p.Return(c, epoch)

	stats = p.Stats()
	assert.Equal(t, 2, stats.Idle)
	assert.Equal(t, int32(0), stats.CheckedOut)
}

// TestPoolCheckoutIsLIFO verifies the pool hands out the most recently
// returned connection first, preferring cache-warm connections over strict
// fairness.
func TestPoolCheckoutIsLIFO(t *testing.T) {
	p := testPool(t, 0)

	ctx := context.Background()

	first := fakeConn()
	second := fakeConn()
	third := fakeConn()

	p.mu.Lock()
	p.idle = append(p.idle, first, second, third)
	p.mu.Unlock()

	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, third, c, "checkout must pop the most recently pushed connection first")
	p.Return(c, epoch)

	c, epoch, err = p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, third, c, "a just-returned connection must be the next one handed out")
	p.Return(c, epoch)

	c, epoch, err = p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, third, c)
	p.Discard(c)

	c, _, err = p.Checkout(ctx)
	require.NoError(t, err)
	assert.Same(t, second, c, "after discarding the LIFO head, the next-most-recent connection is served")
}

func TestPoolCheckoutBlocksWhenEmpty(t *testing.T) {
	p := testPool(t, 1)

	ctx := context.Background()

	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, _, err = p.Checkout(timeoutCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Return(c, epoch)
}

func TestPoolReturnDiscardsStaleEpoch(t *testing.T) {
	p := testPool(t, 1)

	ctx := context.Background()

	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)

	// Simulate a refresh happening while c is checked out: bump the epoch
	// and clear the idle stack, as fill() would.
	p.mu.Lock()
	p.epoch++
	p.idle = nil
	p.mu.Unlock()

	p.Return(c, epoch)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Idle, "connection checked out under a stale epoch must not be requeued")
}

func TestPoolCheckoutRetriesAfterRefreshCloses(t *testing.T) {
	p := testPool(t, 1)

	ctx := context.Background()

	// Drain the single connection so the next checkout would block.
	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)
	p.Return(c, epoch)

	_, _, err = p.Checkout(ctx)
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		_, _, err := p.Checkout(ctx)
		assert.NoError(t, err)
		close(done)
	}()

	// Give the goroutine a moment to block on the empty stack, then
	// simulate a refresh swapping in a fresh connection and waking waiters.
	time.Sleep(10 * time.Millisecond)

	p.mu.Lock()
	p.idle = append(p.idle, fakeConn())
	p.epoch++
	p.wakeLocked()
	p.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checkout did not wake up after refresh")
	}
}

func TestPoolDiscard(t *testing.T) {
	p := testPool(t, 1)

	ctx := context.Background()

	c, _, err := p.Checkout(ctx)
	require.NoError(t, err)

	p.Discard(c)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, int32(0), stats.CheckedOut)
}

func TestPoolShutdownWaitsForOutstanding(t *testing.T) {
	p := testPool(t, 1)

	ctx := context.Background()

	c, epoch, err := p.Checkout(ctx)
	require.NoError(t, err)

	shutdownDone := make(chan struct{})

	go func() {
		p.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned before outstanding connection was released")
	case <-time.After(20 * time.Millisecond):
	}

	p.Return(c, epoch)

	select {
	case <-shutdownDone:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not complete after outstanding connection was returned")
	}

	_, _, err = p.Checkout(ctx)
	assert.Error(t, err, "checkout on a shut down pool must fail")
}

func TestMaxInt(t *testing.T) {
	assert.Equal(t, 5, maxInt(5, 1))
	assert.Equal(t, 1, maxInt(0, 1))
}
