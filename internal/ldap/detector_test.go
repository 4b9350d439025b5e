package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_StartStop(t *testing.T) {
	r := NewRegistry(DefaultSettings(), DefaultConnectionSettings())
	d := NewDetector(r, time.Hour)

	require.NoError(t, d.Start())
	require.NoError(t, d.Stop())
}

func TestDetector_StopBeforeStartIsNoop(t *testing.T) {
	r := NewRegistry(DefaultSettings(), DefaultConnectionSettings())
	d := NewDetector(r, time.Hour)

	assert.NoError(t, d.Stop())
}

func TestDetector_StopIsIdempotent(t *testing.T) {
	r := NewRegistry(DefaultSettings(), DefaultConnectionSettings())
	d := NewDetector(r, time.Hour)

	require.NoError(t, d.Start())
	require.NoError(t, d.Stop())
	require.NoError(t, d.Stop())
}

func TestDetector_ProbeAll_NoServersConfigured(t *testing.T) {
	r := NewRegistry(DefaultSettings(), DefaultConnectionSettings())
	d := NewDetector(r, time.Hour)

	// Must return immediately without blocking or panicking when there is
	// nothing to probe.
	done := make(chan struct{})

	go func() {
		d.probeAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probeAll with no configured servers must return promptly")
	}
}

func TestDetector_ProbeHealthy_NoPoolForGeneration(t *testing.T) {
	r := testRegistry(t, 1)
	d := NewDetector(r, time.Hour)

	srv := r.entries[0].server

	// A stale generation means PoolFor returns nil; probeHealthy must no-op
	// rather than panic.
	d.probeHealthy(srv, r.Generation()+1)

	servers, _ := r.SnapshotServers()
	assert.True(t, servers[0].IsHealthy())
}

func TestDetector_ProbeHealthy_MarksUnhealthyOnCheckoutFailure(t *testing.T) {
	r := testRegistry(t, 1)
	d := NewDetector(r, time.Hour)

	srv := r.entries[0].server
	pool := r.entries[0].pool

	// The fake pool's connection has no underlying *goldap.Conn, so a real
	// whoAmI() call would panic; shut the pool down instead so probeHealthy
	// observes an immediate checkout failure rather than ever reaching it.
	pool.Shutdown()

	d.probeHealthy(srv, r.Generation())

	servers, _ := r.SnapshotServers()
	assert.False(t, servers[0].IsHealthy(), "a checkout failure marks the server unhealthy")
}
