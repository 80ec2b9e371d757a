package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type fakeWaterLog struct {
	at  time.Time
	ok  bool
	err error
}

func (f fakeWaterLog) LastWatered(context.Context) (time.Time, bool, error) {
	return f.at, f.ok, f.err
}

func TestLastWatered(t *testing.T) {
	ctx := context.Background()

	v, err := LastWatered(fakeWaterLog{at: time.Unix(1000, 0), ok: true}).Read(ctx)
	if err != nil || v != 1000 {
		t.Fatalf("got %v, %v; want 1000", v, err)
	}

	v, err = LastWatered(fakeWaterLog{}).Read(ctx)
	if err != nil || v != 0 {
		t.Fatalf("never watered: got %v, %v; want 0", v, err)
	}

	boom := errors.New("disk gone")
	if _, err := LastWatered(fakeWaterLog{err: boom}).Read(ctx); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestWithBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	boom := errors.New("i2c nack")
	p := WithBreaker("soil-0", ProbeFunc(func(context.Context) (float64, error) {
		calls++
		return 0, boom
	}), BreakerSettings{Failures: 2, OpenFor: time.Hour}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := p.Read(ctx); !errors.Is(err, boom) {
			t.Fatalf("read %d: err = %v", i, err)
		}
	}
	if _, err := p.Read(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open state", err)
	}
	if calls != 2 {
		t.Errorf("device called %d times, want 2", calls)
	}
}

func TestWithBreakerPassesValues(t *testing.T) {
	p := WithBreaker("temp", Fixed(21.5), BreakerSettings{}, zap.NewNop())
	v, err := p.Read(context.Background())
	if err != nil || v != 21.5 {
		t.Fatalf("got %v, %v", v, err)
	}
}

func TestMoistureFromVolts(t *testing.T) {
	tests := []struct {
		volts, want float64
	}{
		{volts: 2.8, want: 0},
		{volts: 1.2, want: 1},
		{volts: 2.0, want: 0.5},
		{volts: 3.3, want: 0},
		{volts: 0.5, want: 1},
	}
	for _, tt := range tests {
		got := MoistureFromVolts(tt.volts, 2.8, 1.2)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("MoistureFromVolts(%v) = %v, want %v", tt.volts, got, tt.want)
		}
	}
	if got := MoistureFromVolts(1, 2, 2); got != 0 {
		t.Errorf("degenerate calibration = %v", got)
	}
}

func TestAverage(t *testing.T) {
	if got := Average(nil); got != 0 {
		t.Errorf("Average(nil) = %v", got)
	}
	if got := Average([]float64{20, 21, 22, 23}); got != 21.5 {
		t.Errorf("Average = %v", got)
	}
}

func TestSimBoardDecayAndWatering(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sim := NewSimBoard(time.Hour)
	sim.now = func() time.Time { return now }

	ctx := context.Background()
	probe := sim.Moisture(0)

	start, _ := probe.Read(ctx)
	if start != simSeed {
		t.Fatalf("seed = %v, want %v", start, simSeed)
	}

	now = now.Add(time.Hour)
	halved, _ := probe.Read(ctx)
	if math.Abs(halved-simSeed/2) > 0.001 {
		t.Fatalf("after one half-life = %v, want %v", halved, simSeed/2)
	}

	sim.Watered()
	boosted, _ := probe.Read(ctx)
	if boosted <= halved {
		t.Fatalf("watering did not raise moisture: %v -> %v", halved, boosted)
	}
	if boosted > 1 {
		t.Fatalf("moisture above 1: %v", boosted)
	}
}

func TestSimBoardClimate(t *testing.T) {
	sim := NewSimBoard(0)
	sim.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	temp, _ := sim.Temperature().Read(context.Background())
	hum, _ := sim.Humidity().Read(context.Background())
	if temp != simBaseTempC+3 {
		t.Errorf("noon temperature = %v", temp)
	}
	if hum != simBaseHumidity-8 {
		t.Errorf("noon humidity = %v", hum)
	}
}

func TestWithBreakerIgnoresCancelledReads(t *testing.T) {
	var calls int
	p := ProbeFunc(func(ctx context.Context) (float64, error) {
		calls++
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 21.5, nil
	})
	guarded := WithBreaker("temperature", p, BreakerSettings{Failures: 2, OpenFor: time.Minute}, zap.NewNop())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, stop := context.WithTimeout(context.Background(), -time.Second)
	defer stop()
	for i := 0; i < 3; i++ {
		if _, err := guarded.Read(cancelled); !errors.Is(err, context.Canceled) {
			t.Fatalf("read %d err = %v, want context.Canceled", i, err)
		}
		if _, err := guarded.Read(expired); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("read %d err = %v, want context.DeadlineExceeded", i, err)
		}
	}

	v, err := guarded.Read(context.Background())
	if err != nil || v != 21.5 {
		t.Fatalf("Read after aborted reads = %v, %v; breaker should still be closed", v, err)
	}
	if calls != 7 {
		t.Fatalf("probe called %d times, want 7", calls)
	}
}
