package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type SchedulerConfig struct {
	QueueEntryTTL      time.Duration
	QueueSweepInterval time.Duration
	ReconcileInterval  time.Duration
}

// StartScheduler runs the periodic maintenance jobs until ctx is done.
func StartScheduler(ctx context.Context, cfg SchedulerConfig, queue *QueueService, teams *TeamService, logger *slog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Drop players who queued and walked away.
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.QueueSweepInterval),
		gocron.NewTask(func() {
			if _, err := queue.SweepStaleEntries(ctx, cfg.QueueEntryTTL); err != nil {
				logger.Error("queue sweep failed", slog.Any("error", err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Minute
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(func() {
			n, err := teams.ReconcileRecruiting(ctx)
			if err != nil {
				logger.Error("recruiting reconcile failed", slog.Any("error", err))
				return
			}
			if n > 0 {
				logger.Warn("closed recruiting on full teams", slog.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	sched.Start()
	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}()
	return sched, nil
}
