package mqttbus

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishWait = 5 * time.Second

// Publisher sends JSON documents to one topic.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
}

func NewPublisher(client mqtt.Client, topic string, qos byte) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishJSON encodes v and waits a bounded time for the broker to accept it.
func (p *Publisher) PublishJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, false, body)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("publish to %s: timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}
