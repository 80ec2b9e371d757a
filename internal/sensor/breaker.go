package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes the breaker placed in front of a hardware probe.
type BreakerSettings struct {
	Failures uint32        // consecutive failures before opening
	OpenFor  time.Duration // how long to skip the device once open
}

// DefaultBreaker skips a device for a minute after three straight failures.
var DefaultBreaker = BreakerSettings{Failures: 3, OpenFor: time.Minute}

// WithBreaker guards p with a circuit breaker. While open, Read returns
// gobreaker.ErrOpenState without touching the device.
func WithBreaker(name string, p Probe, s BreakerSettings, logger *zap.Logger) Probe {
	if s.Failures == 0 {
		s.Failures = DefaultBreaker.Failures
	}
	if s.OpenFor <= 0 {
		s.OpenFor = DefaultBreaker.OpenFor
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.Failures
		},
		IsSuccessful: func(err error) bool {
			// An abandoned read says nothing about the device.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sensor breaker state changed",
				zap.String("sensor", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return ProbeFunc(func(ctx context.Context) (float64, error) {
		v, err := cb.Execute(func() (interface{}, error) {
			return p.Read(ctx)
		})
		if err != nil {
			return 0, err
		}
		return v.(float64), nil
	})
}
