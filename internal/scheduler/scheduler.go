package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Second

// Job is invoked once per interval. ctx is canceled on shutdown.
type Job func(ctx context.Context)

// Scheduler runs a job periodically. Runs never overlap: ticks which happen while the job
// is running are dropped.
type Scheduler struct {
	interval time.Duration
	job      Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(interval time.Duration, job Job) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		interval: interval,
		job:      job,
	}
}

// Start runs the job right away and then once per interval until ctx is canceled or Shutdown is called.
// Calling Start more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})

	go s.run(ctx)
}

// Shutdown cancels the running job, if any, and waits for the loop to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-stopped
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	zap.S().Infow("scheduler started", "interval", s.interval)

	s.job(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.S().Info("scheduler stopped")
			return
		case <-ticker.C:
			s.job(ctx)
		}
	}
}
