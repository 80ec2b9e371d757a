package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls []bool
	hook  func(n int)
}

func (r *recordingPublisher) Publish(_ context.Context, watered bool) {
	r.mu.Lock()
	r.calls = append(r.calls, watered)
	n := len(r.calls)
	r.mu.Unlock()
	if r.hook != nil {
		r.hook(n)
	}
}

func (r *recordingPublisher) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func TestRunPublishesImmediatelyAndRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &recordingPublisher{}
	pub.hook = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		New(5*time.Millisecond, pub, zap.NewNop()).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	calls := pub.snapshot()
	if len(calls) != 3 {
		t.Fatalf("got %d publishes, want 3", len(calls))
	}
	for i, w := range calls {
		if w {
			t.Errorf("publish %d had watered=true", i)
		}
	}
}

func TestRunFirstPublishIsImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan time.Time, 1)
	pub := &recordingPublisher{hook: func(n int) {
		if n == 1 {
			first <- time.Now()
		}
	}}

	start := time.Now()
	go New(time.Hour, pub, zap.NewNop()).Run(ctx)

	select {
	case at := <-first:
		if at.Sub(start) > time.Second {
			t.Errorf("first publish after %v", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial publish")
	}
}

func TestRunWaitsAfterSlowPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var stamps []time.Time
	pub := &recordingPublisher{hook: func(n int) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		if n == 2 {
			cancel()
		}
	}}

	New(20*time.Millisecond, pub, zap.NewNop()).Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 2 {
		t.Fatalf("got %d publishes, want 2", len(stamps))
	}
	// 30ms publish plus 20ms wait.
	if gap := stamps[1].Sub(stamps[0]); gap < 50*time.Millisecond {
		t.Errorf("gap between publishes = %v, want >= 50ms", gap)
	}
}

func TestRunStopsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{hook: func(int) { cancel() }}

	done := make(chan struct{})
	go func() {
		New(time.Hour, pub, zap.NewNop()).Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler ignored cancellation")
	}
	if n := len(pub.snapshot()); n != 1 {
		t.Fatalf("got %d publishes, want 1", n)
	}
}
