package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/config"
	"github.com/plantpod/pod-agent/internal/model"
)

func simConfig(t *testing.T, url string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.PodID = "pod-test"
	cfg.Publish.URL = url
	cfg.Publish.Interval = time.Hour
	cfg.Plants = []config.PlantConfig{{ID: "basil", SoilChannel: 0}, {ID: "fern", SoilChannel: 1}}
	cfg.Input.Kind = config.InputNone
	cfg.Hardware.Kind = config.HardwareSim
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Store.Path = filepath.Join(t.TempDir(), "agent.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestRunPublishesOnStartAndStops(t *testing.T) {
	got := make(chan model.TelemetryPayload, 4)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p model.TelemetryPayload
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- p
	}))
	defer collector.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, simConfig(t, collector.URL), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case p := <-got:
		if p.PodID != "pod-test" || p.Watered {
			t.Errorf("payload = %+v", p)
		}
		if len(p.PlantInfo) != 2 {
			t.Errorf("plant_info = %+v", p.PlantInfo)
		}
		if !p.GlobalInfo.Complete() {
			t.Errorf("global_info incomplete: %+v", p.GlobalInfo)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no startup publish")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLastWateredComesFromStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, simConfig(t, "http://127.0.0.1:1"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	before := a.Publisher.Build(ctx, false)
	if before.PlantInfo["basil"].LastWateredAt != 0 {
		t.Fatalf("lastWateredAt before watering = %d", before.PlantInfo["basil"].LastWateredAt)
	}

	at := time.Unix(1700000000, 0)
	if err := a.store.RecordTransition(ctx, model.Transition{State: model.StateWet, At: at, Source: "test"}); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}

	after := a.Publisher.Build(ctx, true)
	for id, r := range after.PlantInfo {
		if r.LastWateredAt != at.Unix() {
			t.Errorf("%s lastWateredAt = %d, want %d", id, r.LastWateredAt, at.Unix())
		}
	}

	recent, err := a.store.Recent(ctx, 5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent = %v, %v", recent, err)
	}
}

func TestHandlerServesCurrent(t *testing.T) {
	a, err := New(context.Background(), simConfig(t, "http://127.0.0.1:1"), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/current", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var cur model.CurrentReadings
	if err := json.Unmarshal(rec.Body.Bytes(), &cur); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := cur.PlantInfo["fern"]; !ok {
		t.Fatalf("plant_info = %+v", cur.PlantInfo)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGPIOInputNeedsRaspi(t *testing.T) {
	cfg := simConfig(t, "http://127.0.0.1:1")
	cfg.Input.Kind = config.InputGPIO
	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for gpio input on simulated hardware")
	}
}

func TestWithoutMirrorsSkipsBroker(t *testing.T) {
	cfg := simConfig(t, "http://127.0.0.1:1")
	// Nothing listens here; a connect attempt would back off for seconds.
	cfg.MQTT.Host = "127.0.0.1"
	cfg.MQTT.Port = 1
	cfg.Influx.URL = "http://127.0.0.1:1"

	start := time.Now()
	a, err := New(context.Background(), cfg, zap.NewNop(), WithoutMirrors())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.mqtt != nil || a.influx != nil {
		t.Fatal("one-shot app opened a mirror")
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("New took %v", d)
	}
	if a.Publisher == nil || a.Assembler == nil {
		t.Fatal("publisher not built")
	}
}
