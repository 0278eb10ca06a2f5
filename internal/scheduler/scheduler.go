package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DueSweeper publishes events for pledges that fell due.
type DueSweeper interface {
	DueSweep(ctx context.Context) (int, error)
}

// Scheduler runs background jobs on cron specs. Specs are evaluated in UTC.
type Scheduler struct {
	cronEngine   *cron.Cron
	sweeper      DueSweeper
	logger       logrus.FieldLogger
	dueSweepSpec string
	jobTimeout   time.Duration
}

// New constructs a scheduler. Overlapping runs of a job are skipped.
func New(sweeper DueSweeper, logger logrus.FieldLogger, dueSweepSpec string, jobTimeout time.Duration) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("scheduler: nil due sweeper")
	}
	if logger == nil {
		return nil, errors.New("scheduler: nil logger")
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	logger = logger.WithField("component", "scheduler")
	return &Scheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(
				cron.Recover(cron.PrintfLogger(logger)),
				cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
			),
		),
		sweeper:      sweeper,
		logger:       logger,
		dueSweepSpec: dueSweepSpec,
		jobTimeout:   jobTimeout,
	}, nil
}

// Start registers the jobs and starts the engine.
func (s *Scheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.dueSweepSpec, s.RunDueSweep); err != nil {
		return fmt.Errorf("scheduler: add due sweep job %q: %w", s.dueSweepSpec, err)
	}
	s.cronEngine.Start()
	s.logger.WithField("due_sweep", s.dueSweepSpec).Info("scheduler started")
	return nil
}

// RunDueSweep runs one due sweep with the job timeout.
func (s *Scheduler) RunDueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	published, err := s.sweeper.DueSweep(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("published", published).Error("due sweep failed")
		return
	}
	s.logger.WithField("published", published).Info("due sweep completed")
}

// Stop stops scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cronEngine.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}
