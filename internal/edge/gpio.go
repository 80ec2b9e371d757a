package edge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gobot.io/x/gobot/v2/drivers/gpio"

	"github.com/plantpod/pod-agent/internal/model"
)

// GPIOSource watches a pull-up contact sensor: the line reads high when dry
// and is pulled low when water closes the contact.
type GPIOSource struct {
	button *gpio.ButtonDriver
	pin    string
	logger *zap.Logger
}

// NewGPIOSource binds a button driver to pin on the given reader, normally
// the Raspberry Pi adaptor.
func NewGPIOSource(r gpio.DigitalReader, pin string, logger *zap.Logger) *GPIOSource {
	b := gpio.NewButtonDriver(r, pin)
	b.DefaultState = 1
	return &GPIOSource{button: b, pin: pin, logger: logger.Named("gpio")}
}

func (g *GPIOSource) Transitions(ctx context.Context) (<-chan model.Transition, error) {
	out := make(chan model.Transition, 8)
	emit := func(state model.WaterState) {
		select {
		case out <- model.Transition{State: state, At: time.Now(), Source: "gpio:" + g.pin}:
		case <-ctx.Done():
		}
	}

	if err := g.button.On(gpio.ButtonPush, func(interface{}) { emit(model.StateWet) }); err != nil {
		return nil, fmt.Errorf("subscribe push: %w", err)
	}
	if err := g.button.On(gpio.ButtonRelease, func(interface{}) { emit(model.StateDry) }); err != nil {
		return nil, fmt.Errorf("subscribe release: %w", err)
	}
	if err := g.button.On(gpio.Error, func(data interface{}) {
		g.logger.Warn("gpio read failed", zap.String("pin", g.pin), zap.Any("error", data))
	}); err != nil {
		return nil, fmt.Errorf("subscribe error: %w", err)
	}

	if err := g.button.Start(); err != nil {
		return nil, fmt.Errorf("start button on pin %s: %w", g.pin, err)
	}
	go func() {
		<-ctx.Done()
		if err := g.button.Halt(); err != nil {
			g.logger.Warn("halt button", zap.Error(err))
		}
	}()
	return out, nil
}
