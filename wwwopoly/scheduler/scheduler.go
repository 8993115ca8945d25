// Package scheduler owns the background goroutines that drive the
// periodic economy jobs. Each job runs on its own ticker under a shared
// parent context with panic recovery, and Shutdown waits for every job
// to drain before returning.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one reconciliation step. Jobs are idempotent within their
// period, so running them more often than the period only costs a
// guard check.
type Job func(ctx context.Context, now time.Time) error

// Scheduler manages the job goroutines with proper lifecycle control.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   map[string]context.CancelFunc
	mu     sync.Mutex
	log    *slog.Logger
}

func New(log *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]context.CancelFunc),
		log:    log,
	}
}

// Every runs job immediately and then on every tick of interval until
// the scheduler shuts down. Job errors and panics are logged; the
// ticker keeps going.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, exists := s.jobs[name]; exists {
		s.log.Warn("job already scheduled, replacing", slog.String("job", name))
		cancel()
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	s.jobs[name] = jobCancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Info("job scheduled",
			slog.String("type", "job"),
			slog.String("job", name),
			slog.Duration("interval", interval),
		)

		s.runOnce(jobCtx, name, job)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				s.log.Info("job stopped", slog.String("job", name))
				return
			case <-ticker.C:
				s.runOnce(jobCtx, name, job)
			}
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panic",
				slog.String("type", "job"),
				slog.String("job", name),
				slog.Any("panic", r),
			)
		}
	}()

	if err := job(ctx, time.Now().UTC()); err != nil {
		s.log.Error("job failed",
			slog.String("type", "job"),
			slog.String("job", name),
			slog.Any("error", err),
		)
	}
}

// Stop cancels a single job by name.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, exists := s.jobs[name]; exists {
		cancel()
		delete(s.jobs, name)
	}
}

// Shutdown cancels every job and waits for them to drain, up to timeout.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()
	s.log.Info("shutting down scheduler", slog.Int("jobs", count))

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		s.log.Warn("timeout waiting for jobs to stop", slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}
