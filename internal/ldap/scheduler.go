package ldap

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// schedulerQueueSize bounds how many submitted-but-not-yet-dispatched jobs
// the scheduler buffers. Dispatch is near-instant (the dispatcher only
// spawns a goroutine per job, it never runs the task itself), so this is
// generous headroom rather than a real throughput limit.
const schedulerQueueSize = 256

type job struct {
	shutdown bool
	run      func()
}

// Scheduler is the job scheduler (component C): a single dispatcher
// goroutine reads jobs off a multi-producer channel and spawns each task
// onto its own goroutine, bridging a blocking host auth callback to
// asynchronous LDAP work without ever blocking the dispatcher itself on a
// slow task.
type Scheduler struct {
	mu     sync.Mutex
	jobs   chan job
	doneCh chan struct{}
	closed bool
}

// NewScheduler builds an unstarted scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start launches the dispatcher goroutine. Calling Start on an
// already-started scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs != nil {
		return
	}

	s.jobs = make(chan job, schedulerQueueSize)
	s.doneCh = make(chan struct{})
	s.closed = false

	go s.loop(s.jobs, s.doneCh)

	log.Debug().Msg("job scheduler started")
}

func (s *Scheduler) loop(jobs chan job, done chan struct{}) {
	defer close(done)

	for j := range jobs {
		if j.shutdown {
			return
		}

		go j.run()
	}
}

// IsReady reports whether the scheduler is currently accepting jobs.
func (s *Scheduler) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.jobs != nil && !s.closed
}

// Shutdown stops accepting new jobs and waits for the dispatcher goroutine
// to exit. It does not wait for already-dispatched tasks to finish - only
// for the dispatcher itself, matching the scheduler thread join in the
// design this is based on. Idempotent.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.closed || s.jobs == nil {
		s.closed = true
		s.mu.Unlock()

		return nil
	}

	jobs := s.jobs
	done := s.doneCh
	s.mu.Unlock()

	jobs <- job{shutdown: true}

	<-done

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	log.Debug().Msg("job scheduler shut down")

	return nil
}

func (s *Scheduler) send(j job) error {
	s.mu.Lock()
	jobs := s.jobs
	closed := s.closed
	s.mu.Unlock()

	if jobs == nil || closed {
		return New(KindFailedToSendJob, "scheduler is not running")
	}

	jobs <- j

	return nil
}

// SubmitSync runs task on the scheduler and blocks the calling goroutine
// until it completes, returning its result. This is how the host's
// blocking auth callback bridges into the scheduler (spec §4.C, §5).
func SubmitSync[R any](s *Scheduler, task func() R) (R, error) {
	var result R

	doneCh := make(chan struct{})

	err := s.send(job{run: func() {
		result = task()
		close(doneCh)
	}})
	if err != nil {
		var zero R

		return zero, err
	}

	<-doneCh

	return result, nil
}

// SubmitAsync runs task on the scheduler without blocking the caller,
// invoking callback with data and the task's result once it completes.
func SubmitAsync[T any, R any](s *Scheduler, task func() R, callback func(T, R), data T) error {
	return s.send(job{run: func() {
		res := task()
		callback(data, res)
	}})
}
