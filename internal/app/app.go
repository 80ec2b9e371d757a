// Package app wires the configured hardware, sinks and loops into a running
// agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/api"
	"github.com/plantpod/pod-agent/internal/config"
	"github.com/plantpod/pod-agent/internal/edge"
	"github.com/plantpod/pod-agent/internal/metrics"
	"github.com/plantpod/pod-agent/internal/mirror"
	"github.com/plantpod/pod-agent/internal/scheduler"
	"github.com/plantpod/pod-agent/internal/sensor"
	"github.com/plantpod/pod-agent/internal/store"
	"github.com/plantpod/pod-agent/internal/telemetry"
	"github.com/plantpod/pod-agent/pkg/mqttbus"
)

const (
	shutdownGrace = 5 * time.Second
	simHalfLife   = 12 * time.Hour
	mqttQoS       = 1
)

// hardware is the set of probes a board offers.
type hardware interface {
	Moisture(channel int) sensor.Probe
	Temperature() sensor.Probe
	Humidity() sensor.Probe
}

// Option adjusts what New opens.
type Option func(*App)

// WithoutMirrors skips the MQTT and Influx sinks. One-shot commands use it so
// they never take over the daemon's broker session.
func WithoutMirrors() Option {
	return func(a *App) { a.noMirrors = true }
}

// App owns every resource of a running agent.
type App struct {
	cfg       config.Config
	noMirrors bool
	logger    *zap.Logger
	metrics   *metrics.Metrics

	store     *store.Store
	board     *sensor.Board
	sim       *sensor.SimBoard
	mqtt      *mqttbus.Conn
	influx    *mirror.InfluxSink
	Assembler *telemetry.Assembler
	Publisher *telemetry.Publisher
}

// New opens every resource the configuration asks for. The MQTT client, when
// configured, stays connected until ctx ends.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}
	for _, o := range opts {
		o(a)
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.cfg.Input.Kind == config.InputGPIO && a.cfg.Hardware.Kind != config.HardwareRaspi {
		return errors.New("gpio input requires raspi hardware")
	}

	st, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.store = st
	if err := st.InitSchema(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	hw, err := a.openHardware()
	if err != nil {
		return err
	}

	lastWatered := sensor.LastWatered(st)
	plants := make([]telemetry.Plant, 0, len(a.cfg.Plants))
	for _, p := range a.cfg.Plants {
		plants = append(plants, telemetry.Plant{
			ID:          p.ID,
			Moisture:    hw.Moisture(p.SoilChannel),
			LastWatered: lastWatered,
		})
	}
	a.Assembler = telemetry.NewAssembler(plants, hw.Temperature(), hw.Humidity(), a.logger, a.metrics)

	var sinks []telemetry.Sink
	if a.cfg.MQTT.Enabled() && !a.noMirrors {
		client, err := mqttbus.Connect(ctx, mqttbus.Config{
			Host:     a.cfg.MQTT.Host,
			Port:     a.cfg.MQTT.Port,
			User:     a.cfg.MQTT.User,
			Password: a.cfg.MQTT.Password,
			ClientID: a.cfg.MQTT.ClientID,
		}, a.logger.Named("mqtt"))
		if err != nil {
			return err
		}
		a.mqtt = client
		sinks = append(sinks, mirror.NewMQTTSink(mqttbus.NewPublisher(client, a.cfg.MQTT.TelemetryTopic, mqttQoS)))
	}
	if a.cfg.Influx.Enabled() && !a.noMirrors {
		a.influx = mirror.NewInfluxSink(a.cfg.Influx.URL, a.cfg.Influx.Token, a.cfg.Influx.Org, a.cfg.Influx.Bucket)
		sinks = append(sinks, a.influx)
	}

	a.Publisher = telemetry.NewPublisher(telemetry.PublisherConfig{
		PodID:   a.cfg.PodID,
		URL:     a.cfg.Publish.URL,
		Timeout: a.cfg.Publish.Timeout,
	}, a.Assembler, a.logger, a.metrics, sinks...)
	return nil
}

func (a *App) openHardware() (hardware, error) {
	switch a.cfg.Hardware.Kind {
	case config.HardwareSim:
		a.sim = sensor.NewSimBoard(simHalfLife)
		a.logger.Info("using simulated sensors")
		return a.sim, nil
	default:
		b := sensor.NewBoard(sensor.BoardConfig{
			Samples:      a.cfg.Hardware.BME280Samples,
			SoilDryVolts: a.cfg.Hardware.SoilDryVolts,
			SoilWetVolts: a.cfg.Hardware.SoilWetVolts,
		})
		if err := b.Start(); err != nil {
			return nil, fmt.Errorf("start board: %w", err)
		}
		a.board = b
		return guarded{b: b, logger: a.logger}, nil
	}
}

// guarded puts a circuit breaker in front of every hardware probe.
type guarded struct {
	b      *sensor.Board
	logger *zap.Logger
}

func (g guarded) Moisture(channel int) sensor.Probe {
	return sensor.WithBreaker(fmt.Sprintf("soil-%d", channel), g.b.Moisture(channel), sensor.DefaultBreaker, g.logger)
}

func (g guarded) Temperature() sensor.Probe {
	return sensor.WithBreaker("temperature", g.b.Temperature(), sensor.DefaultBreaker, g.logger)
}

func (g guarded) Humidity() sensor.Probe {
	return sensor.WithBreaker("humidity", g.b.Humidity(), sensor.DefaultBreaker, g.logger)
}

// Run starts the scheduler, the edge handler and the HTTP server, and blocks
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	src, err := a.waterSource()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.New(a.cfg.Publish.Interval, a.Publisher, a.logger).Run(ctx)
	}()

	if src != nil {
		h := edge.NewHandler(a.Publisher, a.store, a.logger, a.metrics)
		if a.sim != nil {
			h.OnWet(a.sim.Watered)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Run(ctx, src); err != nil {
				a.logger.Error("water input stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	a.logger.Info("shutting down")
	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shCancel()
	if err := srv.Shutdown(shCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return runErr
}

// Handler is the agent's HTTP surface.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.Assembler, a.readinessChecks(), a.metrics.Handler(), a.logger)
}

func (a *App) waterSource() (edge.Source, error) {
	switch a.cfg.Input.Kind {
	case config.InputGPIO:
		if a.board == nil {
			return nil, errors.New("gpio input requires raspi hardware")
		}
		return edge.NewGPIOSource(a.board.Adaptor(), a.cfg.Input.Pin, a.logger), nil
	case config.InputMQTT:
		if a.mqtt == nil {
			return nil, errors.New("mqtt input requires a broker")
		}
		c := mqttbus.NewConsumer(a.mqtt, a.cfg.MQTT.InputTopic, mqttQoS, a.logger.Named("mqtt"))
		return edge.NewMQTTSource(c, a.logger), nil
	default:
		return nil, nil
	}
}

func (a *App) readinessChecks() []api.Check {
	checks := []api.Check{{Name: "store", Fn: a.store.Ping}}
	if a.mqtt != nil {
		checks = append(checks, api.Check{Name: "mqtt", Fn: func(context.Context) error {
			if !a.mqtt.IsConnectionOpen() {
				return errors.New("not connected")
			}
			return nil
		}})
	}
	if a.influx != nil {
		checks = append(checks, api.Check{Name: "influx", Fn: func(ctx context.Context) error {
			if !a.influx.Ping(ctx) {
				return errors.New("unreachable")
			}
			return nil
		}})
	}
	return checks
}

// Close releases the hardware and the local sinks. The MQTT client closes with
// the context passed to New.
func (a *App) Close() {
	if a.board != nil {
		if err := a.board.Halt(); err != nil {
			a.logger.Warn("halt board", zap.Error(err))
		}
	}
	if a.influx != nil {
		a.influx.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
}
