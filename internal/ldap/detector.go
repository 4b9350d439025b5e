package ldap

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/ldap-manager/internal/retry"
)

// probeTimeout bounds the in-pool WhoAmI probe's checkout wait and the
// out-of-pool reconnect probe's retry loop: once it expires no further dial
// attempt starts. A dial already in progress is bounded by the connection
// settings' ConnectTimeout, not by probeTimeout.
const probeTimeout = 5 * time.Second

// reconnectRetryConfig gives an unhealthy server's reconnect probe one
// extra attempt after a short delay, so a single dropped packet doesn't
// need a full extra detector interval to recover.
var reconnectRetryConfig = retry.Config{
	MaxAttempts:    2,
	InitialDelay:   200 * time.Millisecond,
	MaxDelay:       200 * time.Millisecond,
	Multiplier:     1,
	JitterFraction: 0.1,
}

// Detector is the background failure detector (component E). On every
// tick it probes each configured server: a HEALTHY server gets a
// lightweight in-pool WhoAmI ping, an UNHEALTHY server gets an out-of-pool
// reconnect attempt; a successful reconnect flips the server back to
// HEALTHY and requests a pool refill.
type Detector struct {
	registry *Registry
	interval time.Duration

	scheduler gocron.Scheduler
}

// NewDetector builds a detector that probes registry's servers every
// interval once started.
func NewDetector(registry *Registry, interval time.Duration) *Detector {
	return &Detector{registry: registry, interval: interval}
}

// Start schedules the periodic probe job.
func (d *Detector) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return Wrap(KindFailedToStopFailureDetector, "failed to create scheduler", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(d.interval),
		gocron.NewTask(d.probeAll),
	)
	if err != nil {
		return Wrap(KindFailedToStopFailureDetector, "failed to schedule probe job", err)
	}

	d.scheduler = scheduler
	d.scheduler.Start()

	log.Debug().Dur("interval", d.interval).Msg("failure detector started")

	return nil
}

// Stop shuts the detector down, waiting for any in-flight probe tick to
// finish.
func (d *Detector) Stop() error {
	if d.scheduler == nil {
		return nil
	}

	if err := d.scheduler.Shutdown(); err != nil {
		return Wrap(KindFailedToStopFailureDetector, "", err)
	}

	log.Debug().Msg("failure detector stopped")

	return nil
}

// probeAll runs one detector tick across every configured server
// concurrently.
func (d *Detector) probeAll() {
	servers, generation := d.registry.SnapshotServers()
	connSettings := d.registry.ConnectionSettings()

	done := make(chan struct{}, len(servers))

	for _, srv := range servers {
		go func(srv *Server) {
			d.probeServer(srv, generation, connSettings)
			done <- struct{}{}
		}(srv)
	}

	for range servers {
		<-done
	}
}

func (d *Detector) probeServer(srv *Server, generation uint64, connSettings ConnectionSettings) {
	if srv.IsHealthy() {
		d.probeHealthy(srv, generation)

		return
	}

	d.probeUnhealthy(srv, generation, connSettings)
}

// probeHealthy pings a healthy server with a non-mutating WhoAmI call over
// a connection borrowed from its live pool, so the probe exercises the
// exact path real traffic takes.
func (d *Detector) probeHealthy(srv *Server, generation uint64) {
	pool := d.registry.PoolFor(srv.Index, generation)
	if pool == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	c, epoch, err := pool.Checkout(ctx)
	if err != nil {
		d.registry.SetServerStatus(srv.Index, generation, UnhealthyStatus(err.Error()))

		return
	}

	start := time.Now()
	err = c.whoAmI()
	elapsed := time.Since(start)

	if err != nil {
		pool.Discard(c)
		d.registry.SetServerStatus(srv.Index, generation, UnhealthyStatus(err.Error()))

		return
	}

	pool.Return(c, epoch)
	d.registry.RecordPing(srv.Index, generation, elapsed)
}

// probeUnhealthy attempts a standalone reconnect to an unhealthy server,
// bypassing its pool (which may be empty or closed). A successful dial
// means the server has recovered: mark it healthy and ask its pool to
// refill.
func (d *Detector) probeUnhealthy(srv *Server, generation uint64, connSettings ConnectionSettings) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	c, err := retry.DoWithResultConfig(ctx, reconnectRetryConfig, func() (*conn, error) {
		return dial(srv, connSettings)
	})
	if err != nil {
		d.registry.SetServerStatus(srv.Index, generation, UnhealthyStatus(err.Error()))

		return
	}

	c.close()

	log.Info().Str("server", srv.HostString()).Msg("ldap server recovered, refilling pool")

	d.registry.SetServerStatus(srv.Index, generation, HealthyStatus())

	pool := d.registry.PoolFor(srv.Index, generation)
	if pool == nil {
		return
	}

	if err := pool.Refresh(connSettings); err != nil {
		d.registry.SetServerStatus(srv.Index, generation, UnhealthyStatus(err.Error()))
	}
}
