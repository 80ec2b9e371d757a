package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/model"
	"github.com/plantpod/pod-agent/pkg/dedup"
	"github.com/plantpod/pod-agent/pkg/mqttbus"
)

// redeliveryWindow bounds how long a packet id is remembered for matching QoS 1
// redeliveries.
const redeliveryWindow = 30 * time.Second

// Consumer is satisfied by mqttbus.Consumer.
type Consumer interface {
	Consume(ctx context.Context, handle mqttbus.Handler) error
}

// MQTTSource turns messages on the input topic into transitions. Payloads are
// "wet"/"dry" or {"state":"wet"}.
type MQTTSource struct {
	consumer Consumer
	deduper  *dedup.Deduper
	logger   *zap.Logger
}

// NewMQTTSource reads transitions from c, dropping QoS 1 redeliveries.
func NewMQTTSource(c Consumer, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{consumer: c, deduper: dedup.New(redeliveryWindow, 1000), logger: logger.Named("mqtt-input")}
}

func (m *MQTTSource) Transitions(ctx context.Context) (<-chan model.Transition, error) {
	out := make(chan model.Transition, 8)
	handle := func(msg mqttbus.Message) error {
		// Only a DUP-flagged packet whose id was already accepted is a
		// redelivery. Equal payloads are otherwise distinct transitions.
		seen := !m.deduper.ShouldProcess(msg.Topic + "#" + strconv.Itoa(int(msg.ID)))
		if msg.Duplicate && seen {
			return nil
		}
		state, err := ParsePayload(msg.Payload)
		if err != nil {
			return err
		}
		select {
		case out <- model.Transition{State: state, At: time.Now(), Source: "mqtt:" + msg.Topic}:
		case <-ctx.Done():
		}
		return nil
	}

	go func() {
		if err := m.consumer.Consume(ctx, handle); err != nil {
			m.logger.Error("water input consumer stopped", zap.Error(err))
		}
	}()
	return out, nil
}

// ParsePayload decodes a remote water-input message.
func ParsePayload(payload []byte) (model.WaterState, error) {
	raw := string(bytes.TrimSpace(payload))
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return "", fmt.Errorf("invalid water message: %w", err)
		}
		raw = msg.State
	}
	state, ok := model.ParseWaterState(raw)
	if !ok {
		return "", fmt.Errorf("unknown water state %q", raw)
	}
	return state, nil
}
