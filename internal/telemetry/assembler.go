// Package telemetry assembles pod snapshots from the sensor probes and
// publishes them to the remote collector.
package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/metrics"
	"github.com/plantpod/pod-agent/internal/model"
	"github.com/plantpod/pod-agent/internal/sensor"
)

// Plant binds a plant identifier to its two probes.
type Plant struct {
	ID          string
	Moisture    sensor.Probe
	LastWatered sensor.Probe
}

// Assembler reads the probes and builds plant_info and global_info.
// It holds no mutable state and is safe for concurrent use.
type Assembler struct {
	plants      []Plant
	temperature sensor.Probe
	humidity    sensor.Probe
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewAssembler reads plants in the given order; temperature and humidity
// feed global_info.
func NewAssembler(plants []Plant, temperature, humidity sensor.Probe, logger *zap.Logger, m *metrics.Metrics) *Assembler {
	return &Assembler{
		plants:      append([]Plant(nil), plants...),
		temperature: temperature,
		humidity:    humidity,
		logger:      logger.Named("assembler"),
		metrics:     m,
	}
}

// ReadPlantInfo returns an entry for every plant whose moisture and
// last-watered reads both succeeded. A failed plant is logged and skipped;
// the others are still read.
func (a *Assembler) ReadPlantInfo(ctx context.Context) map[string]model.PlantReading {
	info := make(map[string]model.PlantReading, len(a.plants))
	for _, p := range a.plants {
		moisture, err := p.Moisture.Read(ctx)
		if err != nil {
			a.metrics.SensorFailed("moisture")
			a.logger.Warn("error reading plant", zap.String("plant_id", p.ID), zap.String("sensor", "moisture"), zap.Error(err))
			continue
		}
		watered, err := p.LastWatered.Read(ctx)
		if err != nil {
			a.metrics.SensorFailed("last_watered")
			a.logger.Warn("error reading plant", zap.String("plant_id", p.ID), zap.String("sensor", "last_watered"), zap.Error(err))
			continue
		}
		info[p.ID] = model.PlantReading{
			Moisture:      moisture,
			LastWateredAt: int64(watered),
		}
	}
	return info
}

// ReadGlobalInfo returns both climate values or neither. Unlike plant reads,
// one failure blanks the whole object.
func (a *Assembler) ReadGlobalInfo(ctx context.Context) model.GlobalReading {
	temp, err := a.temperature.Read(ctx)
	if err != nil {
		a.metrics.SensorFailed("temperature")
		a.logger.Warn("error reading global sensors", zap.String("sensor", "temperature"), zap.Error(err))
		return model.GlobalReading{}
	}
	humidity, err := a.humidity.Read(ctx)
	if err != nil {
		a.metrics.SensorFailed("humidity")
		a.logger.Warn("error reading global sensors", zap.String("sensor", "humidity"), zap.Error(err))
		return model.GlobalReading{}
	}
	return model.NewGlobalReading(temp, humidity)
}

// Current builds the read-only snapshot served by the query endpoint.
func (a *Assembler) Current(ctx context.Context) model.CurrentReadings {
	return model.CurrentReadings{
		PlantInfo:  a.ReadPlantInfo(ctx),
		GlobalInfo: a.ReadGlobalInfo(ctx),
	}
}
