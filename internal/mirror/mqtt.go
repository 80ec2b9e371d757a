package mirror

import (
	"context"

	"github.com/plantpod/pod-agent/internal/model"
)

// JSONPublisher is satisfied by mqttbus.Publisher.
type JSONPublisher interface {
	PublishJSON(v any) error
}

// MQTTSink republishes every telemetry payload on the broker.
type MQTTSink struct {
	pub JSONPublisher
}

func NewMQTTSink(pub JSONPublisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Write(_ context.Context, p model.TelemetryPayload) error {
	return s.pub.PublishJSON(p)
}
