package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper periodically cancels pairings whose registration deadline or
// guarantee grace period has passed.
type Sweeper struct {
	scheduler gocron.Scheduler
	pairings  PairingService
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
}

func NewSweeper(pairings PairingService, interval time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Sweeper{scheduler: sched, pairings: pairings, interval: interval, logger: logger}, nil
}

// Start registers the sweep job and starts the scheduler. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to register sweep job: %w", err)
	}
	s.scheduler.Start()
	s.logger.Info("pairing sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.pairings.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("pairing sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("overdue pairings cancelled", slog.Int("count", n))
	}
}

func (s *Sweeper) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.scheduler.Shutdown()
}
