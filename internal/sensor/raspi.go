package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/raspi"
)

const (
	bme280Address  = 0x76
	sampleSpacing  = 200 * time.Millisecond
	defaultSamples = 5
)

// BoardConfig describes the pod's analog and climate hardware.
type BoardConfig struct {
	Samples      int     // BME280 samples averaged per reading
	SoilDryVolts float64 // ADC voltage of a probe in dry air
	SoilWetVolts float64 // ADC voltage of a probe in water
}

// Board owns the Raspberry Pi adaptor plus the ADS1115 soil ADC and the
// BME280 climate sensor hanging off its I2C bus.
type Board struct {
	mu      sync.Mutex
	cfg     BoardConfig
	adaptor *raspi.Adaptor
	adc     *i2c.ADS1x15Driver
	climate *i2c.BME280Driver
}

func NewBoard(cfg BoardConfig) *Board {
	if cfg.Samples < 1 {
		cfg.Samples = defaultSamples
	}
	a := raspi.NewAdaptor()
	return &Board{
		cfg:     cfg,
		adaptor: a,
		adc:     i2c.NewADS1115Driver(a),
		climate: i2c.NewBME280Driver(a, i2c.WithAddress(bme280Address)),
	}
}

// Adaptor exposes the Pi adaptor so GPIO drivers can share it.
func (b *Board) Adaptor() *raspi.Adaptor { return b.adaptor }

// Start connects the adaptor and initialises both I2C devices.
func (b *Board) Start() error {
	if err := b.adaptor.Connect(); err != nil {
		return fmt.Errorf("raspi connect: %w", err)
	}
	if err := b.adc.Start(); err != nil {
		return fmt.Errorf("ads1115 start: %w", err)
	}
	if err := b.climate.Start(); err != nil {
		return fmt.Errorf("bme280 start: %w", err)
	}
	return nil
}

// Halt stops the drivers and releases the adaptor.
func (b *Board) Halt() error {
	return errors.Join(b.adc.Halt(), b.climate.Halt(), b.adaptor.Finalize())
}

// Moisture reads one ADS1115 channel and converts it to a 0..1 fraction.
func (b *Board) Moisture(channel int) Probe {
	return ProbeFunc(func(context.Context) (float64, error) {
		b.mu.Lock()
		volts, err := b.adc.ReadWithDefaults(channel)
		b.mu.Unlock()
		if err != nil {
			return 0, fmt.Errorf("ads1115 channel %d: %w", channel, err)
		}
		return round3(MoistureFromVolts(volts, b.cfg.SoilDryVolts, b.cfg.SoilWetVolts)), nil
	})
}

// Temperature averages BME280 temperature samples in °C.
func (b *Board) Temperature() Probe {
	return b.averaged("temperature", func() (float32, error) { return b.climate.Temperature() })
}

// Humidity averages BME280 relative humidity samples in percent.
func (b *Board) Humidity() Probe {
	return b.averaged("humidity", func() (float32, error) { return b.climate.Humidity() })
}

func (b *Board) averaged(what string, read func() (float32, error)) Probe {
	return ProbeFunc(func(ctx context.Context) (float64, error) {
		values := make([]float64, 0, b.cfg.Samples)
		for i := 0; i < b.cfg.Samples; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return 0, ctx.Err()
				case <-time.After(sampleSpacing):
				}
			}
			b.mu.Lock()
			v, err := read()
			b.mu.Unlock()
			if err != nil {
				return 0, fmt.Errorf("bme280 %s: %w", what, err)
			}
			values = append(values, float64(v))
		}
		return round1(Average(values)), nil
	})
}

// MoistureFromVolts maps a capacitive probe voltage onto 0 (dry) .. 1 (wet).
// Capacitive probes read lower voltages in wetter soil.
func MoistureFromVolts(v, dry, wet float64) float64 {
	if dry == wet {
		return 0
	}
	return clamp01((dry - v) / (dry - wet))
}

// Average returns the arithmetic mean, 0 for no values.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
