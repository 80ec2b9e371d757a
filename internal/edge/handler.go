// Package edge reacts to water-contact transitions: a wet edge triggers an
// immediate telemetry report, a dry edge is only logged.
package edge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/metrics"
	"github.com/plantpod/pod-agent/internal/model"
)

// Source yields debounced transitions until ctx ends. Under test the channel
// may simply be closed once drained.
type Source interface {
	Transitions(ctx context.Context) (<-chan model.Transition, error)
}

// Publisher is satisfied by telemetry.Publisher.
type Publisher interface {
	Publish(ctx context.Context, watered bool)
}

// Recorder persists transitions; store.Store satisfies it.
type Recorder interface {
	RecordTransition(ctx context.Context, tr model.Transition) error
}

// Handler records water transitions and reports each wet one.
type Handler struct {
	publisher Publisher
	recorder  Recorder
	onWet     []func()
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewHandler builds a handler. recorder may be nil.
func NewHandler(p Publisher, recorder Recorder, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{publisher: p, recorder: recorder, logger: logger.Named("edge"), metrics: m}
}

// OnWet registers a hook run after a wet transition is recorded and before
// the report is published.
func (h *Handler) OnWet(fn func()) {
	h.onWet = append(h.onWet, fn)
}

// Run consumes src until ctx ends or the channel closes.
func (h *Handler) Run(ctx context.Context, src Source) error {
	transitions, err := src.Transitions(ctx)
	if err != nil {
		return fmt.Errorf("open water input: %w", err)
	}
	h.logger.Info("listening for water transitions")

	for {
		select {
		case <-ctx.Done():
			return nil
		case tr, ok := <-transitions:
			if !ok {
				return nil
			}
			h.handle(ctx, tr)
		}
	}
}

func (h *Handler) handle(ctx context.Context, tr model.Transition) {
	h.metrics.Transition(string(tr.State))
	log := h.logger.With(zap.String("state", string(tr.State)), zap.String("source", tr.Source))

	if h.recorder != nil {
		if err := h.recorder.RecordTransition(ctx, tr); err != nil {
			log.Warn("failed to record transition", zap.Error(err))
		}
	}

	switch tr.State {
	case model.StateWet:
		log.Info("water detected")
		for _, fn := range h.onWet {
			fn()
		}
		h.publisher.Publish(ctx, true)
	case model.StateDry:
		log.Info("water no longer detected")
	default:
		log.Warn("ignoring unknown water state")
	}
}
