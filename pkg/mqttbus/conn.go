// Package mqttbus wraps the paho client: connect with backoff, publish JSON,
// and subscribe with a handler until the context ends.
package mqttbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Config describes the broker connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
}

// Conn is a paho client that remembers its subscriptions and sends them again
// after every reconnect, since a clean session starts with none.
type Conn struct {
	mqtt.Client

	mu     sync.Mutex
	subs   map[string]subscription
	logger *zap.Logger
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

func newConn(logger *zap.Logger) *Conn {
	return &Conn{subs: make(map[string]subscription), logger: logger}
}

// Connect dials the broker, retrying with exponential backoff. The client is
// disconnected when ctx ends.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Conn, error) {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	conn := newConn(logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(conn.resubscribe)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("mqtt connect failed", zap.String("broker", addr), zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 5), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", addr, err)
	}
	conn.Client = client

	logger.Info("connected to mqtt broker", zap.String("broker", addr))

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		logger.Info("mqtt connection closed")
	}()

	return conn, nil
}

// Listen subscribes topic and keeps the subscription across reconnects.
func (c *Conn) Listen(topic string, qos byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.Client.Subscribe(topic, qos, handler)
	if token.Wait() && token.Error() != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Unlisten drops topic from the kept subscriptions and unsubscribes it.
func (c *Conn) Unlisten(topic string) {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	c.Client.Unsubscribe(topic).Wait()
}

// resubscribe runs on every successful connect, the first one included.
func (c *Conn) resubscribe(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := client.Subscribe(topic, s.qos, s.handler)
		if token.Wait() && token.Error() != nil {
			c.logger.Error("resubscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("resubscribed", zap.String("topic", topic))
	}
}
