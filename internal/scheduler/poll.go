package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/motion2mqtt/internal/core/port"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// QuartzPollScheduler drives the periodic gateway refreshes.
type QuartzPollScheduler struct {
	scheduler quartz.Scheduler
	logger    *zap.Logger
}

func NewQuartzPollScheduler(ctx context.Context, logger *zap.Logger) *QuartzPollScheduler {
	s := quartz.NewStdScheduler()
	s.Start(ctx)
	return &QuartzPollScheduler{
		scheduler: s,
		logger:    logger.With(zap.String("component", "scheduler")),
	}
}

func (s *QuartzPollScheduler) SchedulePoll(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %s", interval)
	}
	pollJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		fn()
		return true, nil
	})
	detail := quartz.NewJobDetail(pollJob, quartz.NewJobKey(fmt.Sprintf("poll_%s", name)))
	if err := s.scheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(interval)); err != nil {
		return err
	}
	s.logger.Info("poll scheduled", zap.String("name", name), zap.Duration("interval", interval))
	return nil
}

func (s *QuartzPollScheduler) Stop(ctx context.Context) {
	s.scheduler.Stop()
	s.scheduler.Wait(ctx)
}

var _ port.PollScheduler = (*QuartzPollScheduler)(nil)
