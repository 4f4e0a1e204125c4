package generation

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
)

// Supervisor owns background generations independently of the HTTP
// request that started them. At most `concurrency` tasks run at once; the
// others wait for a slot.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    *logger.Logger

	mu      sync.Mutex
	closed  bool
	running atomic.Int64
	pending atomic.Int64
}

// NewSupervisor creates a Supervisor with its own root context.
func NewSupervisor(concurrency int, log *logger.Logger) *Supervisor {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		log:    log.With("component", "GenerationSupervisor", "concurrency", concurrency),
	}
}

// Go schedules fn. The context passed to fn is only cancelled by a forced
// Shutdown, never by the caller going away.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.wg.Done()

		// A failed acquire means a forced shutdown: fn still runs so it can
		// record the cancellation.
		acquired := s.sem.Acquire(s.ctx, 1) == nil
		s.pending.Add(-1)
		if acquired {
			defer s.sem.Release(1)
		}

		s.running.Add(1)
		defer s.running.Add(-1)

		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Background task panic", "task", name, "panic", r)
			}
		}()

		fn(s.ctx)
	}()
	return nil
}

// Running returns the number of tasks currently executing.
func (s *Supervisor) Running() int { return int(s.running.Load()) }

// Pending returns the number of tasks waiting for a slot.
func (s *Supervisor) Pending() int { return int(s.pending.Load()) }

// Shutdown stops accepting tasks and waits for the running ones. When ctx
// expires first, the remaining tasks are cancelled and awaited.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.log.Warn("Shutdown deadline reached, cancelling background tasks",
			"running", s.Running(), "pending", s.Pending())
		s.cancel()
		<-done
		return ctx.Err()
	}
}
