package mqttbus

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Message is the part of an inbound MQTT message handlers care about.
type Message struct {
	Topic     string
	Payload   []byte
	ID        uint16
	Duplicate bool // DUP flag: the broker is redelivering an unacknowledged packet
}

// Handler processes one message; a returned error is logged only.
type Handler func(msg Message) error

// Consumer subscribes one topic.
type Consumer struct {
	conn   *Conn
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewConsumer(conn *Conn, topic string, qos byte, logger *zap.Logger) *Consumer {
	return &Consumer{conn: conn, topic: topic, qos: qos, logger: logger}
}

// Consume subscribes and blocks until ctx ends, then unsubscribes. The
// subscription is restored whenever the connection comes back.
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	err := c.conn.Listen(c.topic, c.qos, func(_ mqtt.Client, m mqtt.Message) {
		msg := Message{Topic: m.Topic(), Payload: m.Payload(), ID: m.MessageID(), Duplicate: m.Duplicate()}
		if err := handle(msg); err != nil {
			c.logger.Warn("error handling message", zap.String("topic", msg.Topic), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.logger.Info("subscribed", zap.String("topic", c.topic))

	<-ctx.Done()

	c.conn.Unlisten(c.topic)
	return nil
}
