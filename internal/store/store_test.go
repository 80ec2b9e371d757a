package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/plantpod/pod-agent/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "pod.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func TestLastWateredEmpty(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LastWatered(context.Background())
	if err != nil {
		t.Fatalf("LastWatered: %v", err)
	}
	if ok {
		t.Fatal("expected no watering on an empty log")
	}
}

func TestLastWateredIgnoresDry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	events := []model.Transition{
		{State: model.StateWet, At: base, Source: "gpio"},
		{State: model.StateDry, At: base.Add(time.Minute), Source: "gpio"},
		{State: model.StateWet, At: base.Add(2 * time.Hour), Source: "mqtt"},
		{State: model.StateDry, At: base.Add(3 * time.Hour), Source: "mqtt"},
	}
	for _, ev := range events {
		if err := s.RecordTransition(ctx, ev); err != nil {
			t.Fatalf("RecordTransition: %v", err)
		}
	}

	at, ok, err := s.LastWatered(ctx)
	if err != nil || !ok {
		t.Fatalf("LastWatered: %v, ok=%v", err, ok)
	}
	if !at.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("LastWatered = %v, want %v", at, base.Add(2*time.Hour))
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].State != model.StateDry || recent[1].Source != "mqtt" {
		t.Errorf("Recent = %+v", recent)
	}
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.RecordTransition(context.Background(), model.Transition{State: model.StateWet}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("ping err = %v, want ErrClosed", err)
	}
}
