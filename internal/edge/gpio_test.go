package edge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantpod/pod-agent/internal/model"
)

// contactPin is a digital reader whose level the test drives. It starts high,
// as a pulled-up line does with the contact open.
type contactPin struct {
	level atomic.Int32
}

func newContactPin() *contactPin {
	p := &contactPin{}
	p.level.Store(1)
	return p
}

func (p *contactPin) Name() string { return "contact" }
func (p *contactPin) SetName(string) {}
func (p *contactPin) Connect() error { return nil }
func (p *contactPin) Finalize() error { return nil }
func (p *contactPin) DigitalRead(string) (int, error) {
	return int(p.level.Load()), nil
}

func nextTransition(t *testing.T, ch <-chan model.Transition) model.Transition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("no transition from gpio source")
		return model.Transition{}
	}
}

func TestGPIOSourcePullUpContact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pin := newContactPin()
	ch, err := NewGPIOSource(pin, "7", zap.NewNop()).Transitions(ctx)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}

	select {
	case tr := <-ch:
		t.Fatalf("transition %+v while the line stayed high", tr)
	case <-time.After(50 * time.Millisecond):
	}

	pin.level.Store(0)
	tr := nextTransition(t, ch)
	if tr.State != model.StateWet || tr.Source != "gpio:7" {
		t.Fatalf("low line gave %+v, want wet from gpio:7", tr)
	}

	pin.level.Store(1)
	tr = nextTransition(t, ch)
	if tr.State != model.StateDry || tr.Source != "gpio:7" {
		t.Fatalf("high line gave %+v, want dry from gpio:7", tr)
	}
}
