package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"binflow/internal/channel"
	"binflow/models"
	"binflow/writer"
)

// recordingSink captures every message it receives.
type recordingSink struct {
	name string
	mu   sync.Mutex
	msgs []models.NormalizedMessage
	fail bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, msg models.NormalizedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) Flush() error { return nil }
func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) received() []models.NormalizedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NormalizedMessage, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func dispatchMessage(seq int) models.NormalizedMessage {
	return models.NormalizedMessage{
		Stream: models.StreamTicker,
		Symbol: "BTCUSDT",
		Fields: []models.Field{{Name: "seq", Value: strconv.Itoa(seq)}},
	}
}

func TestDispatcherFanOut(t *testing.T) {
	bus := channel.NewBus(16)
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}

	d := NewDispatcher(bus, []writer.Sink{a, b}, time.Second)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		bus.Publish(ctx, dispatchMessage(i))
	}
	bus.Close()
	d.Stop()

	for _, sink := range []*recordingSink{a, b} {
		msgs := sink.received()
		if len(msgs) != 5 {
			t.Fatalf("sink %s received %d messages, want 5", sink.name, len(msgs))
		}
		for i, msg := range msgs {
			if v, _ := msg.Lookup("seq"); v != strconv.Itoa(i) {
				t.Errorf("sink %s message %d out of order: %s", sink.name, i, v)
			}
		}
	}
}

func TestDispatcherIsolatesFailingSink(t *testing.T) {
	bus := channel.NewBus(16)
	broken := &recordingSink{name: "broken", fail: true}
	healthy := &recordingSink{name: "healthy"}

	d := NewDispatcher(bus, []writer.Sink{broken, healthy}, time.Second)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		bus.Publish(ctx, dispatchMessage(i))
	}
	bus.Close()
	d.Stop()

	if got := len(healthy.received()); got != 3 {
		t.Fatalf("healthy sink received %d messages, want 3", got)
	}
}

func TestDispatcherDrainsAfterCancel(t *testing.T) {
	bus := channel.NewBus(16)
	sink := &recordingSink{name: "sink"}

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(bus, []writer.Sink{sink}, time.Second)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 8; i++ {
		bus.Publish(context.Background(), dispatchMessage(i))
	}

	// Cancelling the run context must not lose queued messages.
	cancel()
	bus.Close()
	d.Stop()

	if got := len(sink.received()); got != 8 {
		t.Fatalf("drain after cancel delivered %d messages, want 8", got)
	}
}

func TestDispatcherDoubleStart(t *testing.T) {
	bus := channel.NewBus(1)
	d := NewDispatcher(bus, nil, time.Second)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected error on second Start")
	}
	bus.Close()
	d.Stop()
}
