package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/metrics"
	"github.com/plantpod/pod-agent/internal/model"
)

const maxLoggedBody = 4 << 10

// Sink receives every built payload after the HTTP POST. Sinks are optional
// mirrors; their failures never reach the caller.
type Sink interface {
	Name() string
	Write(ctx context.Context, p model.TelemetryPayload) error
}

// PublisherConfig holds the static publish settings.
type PublisherConfig struct {
	PodID   string
	URL     string
	Timeout time.Duration
}

// Publisher builds a payload and POSTs it once. It never retries and never
// returns an error: every failure ends as a log line.
type Publisher struct {
	cfg       PublisherConfig
	assembler *Assembler
	client    *http.Client
	sinks     []Sink
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewPublisher posts to cfg.URL with cfg.Timeout (10s when unset) and then
// writes to each sink in order.
func NewPublisher(cfg PublisherConfig, asm *Assembler, logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Publisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	return &Publisher{
		cfg:       cfg,
		assembler: asm,
		client:    &http.Client{Timeout: cfg.Timeout},
		sinks:     sinks,
		now:       time.Now,
		logger:    logger.Named("publisher"),
		metrics:   m,
	}
}

// Build assembles a payload stamped with the current wall-clock second.
func (p *Publisher) Build(ctx context.Context, watered bool) model.TelemetryPayload {
	return model.TelemetryPayload{
		PodID:      p.cfg.PodID,
		At:         p.now().Unix(),
		Watered:    watered,
		PlantInfo:  p.assembler.ReadPlantInfo(ctx),
		GlobalInfo: p.assembler.ReadGlobalInfo(ctx),
	}
}

// Publish builds and sends one payload, then hands it to the sinks.
func (p *Publisher) Publish(ctx context.Context, watered bool) {
	start := time.Now()
	attemptID := uuid.NewString()
	log := p.logger.With(zap.String("attempt_id", attemptID), zap.Bool("watered", watered))

	payload := p.Build(ctx, watered)
	result := p.post(ctx, attemptID, payload, log)
	p.metrics.ObservePublish(watered, result, time.Since(start).Seconds())

	for _, s := range p.sinks {
		if err := s.Write(ctx, payload); err != nil {
			p.metrics.SinkFailed(s.Name())
			log.Warn("sink write failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

func (p *Publisher) post(ctx context.Context, attemptID string, payload model.TelemetryPayload, log *zap.Logger) string {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode telemetry", zap.Error(err))
		return metrics.ResultTransport
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to post telemetry", zap.Error(err))
		return metrics.ResultTransport
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", attemptID)

	log.Info("posting telemetry",
		zap.Int64("at", payload.At),
		zap.Int("plants", len(payload.PlantInfo)),
		zap.Bool("global_complete", payload.GlobalInfo.Complete()))
	log.Debug("telemetry payload", zap.ByteString("body", body))

	resp, err := p.client.Do(req)
	if err != nil {
		log.Warn("failed to post telemetry", zap.String("url", p.cfg.URL), zap.Error(err))
		return metrics.ResultTransport
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	fields := []zap.Field{zap.Int("status", resp.StatusCode), zap.String("body", string(respBody))}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("collector rejected telemetry", fields...)
		return metrics.ResultHTTPError
	}
	log.Info("posted telemetry", fields...)
	return metrics.ResultOK
}
