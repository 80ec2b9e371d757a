// Package sensor provides the scalar probes the telemetry assembler reads:
// soil moisture, last-watered time, average temperature and average humidity.
package sensor

import (
	"context"
	"time"
)

// Probe is a zero-argument reading that may fail.
type Probe interface {
	Read(ctx context.Context) (float64, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (float64, error)

func (f ProbeFunc) Read(ctx context.Context) (float64, error) { return f(ctx) }

// Fixed returns a probe that always yields v.
func Fixed(v float64) Probe {
	return ProbeFunc(func(context.Context) (float64, error) { return v, nil })
}

// Failing returns a probe that always yields err.
func Failing(err error) Probe {
	return ProbeFunc(func(context.Context) (float64, error) { return 0, err })
}

// WaterLog is the source of the most recent wet transition.
type WaterLog interface {
	LastWatered(ctx context.Context) (time.Time, bool, error)
}

// LastWatered reads the water log and reports unix seconds, 0 when the pod
// has never seen water.
func LastWatered(log WaterLog) Probe {
	return ProbeFunc(func(ctx context.Context) (float64, error) {
		at, ok, err := log.LastWatered(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		return float64(at.Unix()), nil
	})
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
