package mailsync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a periodic maintenance task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs maintenance jobs such as the full list sweep on cron schedules.
type Scheduler struct {
	c   *cron.Cron
	log *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		c:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log: log.Named("scheduler"),
	}
}

// Add registers a job. A job with an empty Spec is skipped.
func (s *Scheduler) Add(j Job) error {
	if j.Spec == "" {
		return nil
	}
	_, err := s.c.AddFunc(j.Spec, func() {
		ctx := context.Background()
		if j.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.Timeout)
			defer cancel()
		}
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			s.log.Warn("job failed", zap.String("job", j.Name), zap.Error(err))
			return
		}
		s.log.Debug("job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", j.Name, j.Spec, err)
	}
	s.log.Info("job scheduled", zap.String("job", j.Name), zap.String("spec", j.Spec))
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop stops scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
