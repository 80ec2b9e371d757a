// Package scheduler publishes a routine telemetry report on a fixed cadence.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher sends one telemetry payload. Implementations swallow their own
// failures.
type Publisher interface {
	Publish(ctx context.Context, watered bool)
}

// Scheduler sends the routine watered=false report.
type Scheduler struct {
	interval  time.Duration
	publisher Publisher
	logger    *zap.Logger
}

// New builds a scheduler that publishes every interval.
func New(interval time.Duration, p Publisher, logger *zap.Logger) *Scheduler {
	return &Scheduler{interval: interval, publisher: p, logger: logger.Named("scheduler")}
}

// Run publishes watered=false immediately, then again each interval after the
// previous publish has finished. It returns when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	defer s.logger.Info("scheduler stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		s.publisher.Publish(ctx, false)

		wait := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}
	}
}
