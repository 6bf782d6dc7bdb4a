// Package worker runs the periodic maintenance jobs of the establishment
// platform on cron schedules.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/establishment-api/pkg/logger"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. A run still in progress when the next
// tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(log),
			cron.SkipIfStillRunning(log),
		)),
		logger: log,
		ctx:    context.Background(),
	}
}

// Add registers job under spec, a standard five-field cron expression.
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(job); err != nil {
			s.logger.Error(err, "Scheduled job failed", "job", job.Name())
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	s.logger.Info("Job scheduled", "job", job.Name(), "spec", spec)
	return nil
}

// RunNow runs job once in the scheduler context.
func (s *Scheduler) RunNow(job Job) error {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	return job.Run(ctx)
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
