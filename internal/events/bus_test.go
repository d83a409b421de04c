package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"comicshelf/internal/events"
	"comicshelf/internal/logging"
)

func runBus(t *testing.T, bus *events.Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBusDispatchesInRegistrationOrder(t *testing.T) {
	bus := events.NewBus(8, logging.NewNop())

	var mu sync.Mutex
	var order []string
	received := make(chan struct{}, 2)
	record := func(name string) events.Handler {
		return func(_ context.Context, ev events.Event) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			if ev.ComicID != 42 {
				t.Errorf("unexpected comic id %d", ev.ComicID)
			}
			received <- struct{}{}
		}
	}
	bus.Subscribe(events.TopicComicsUnprocessed, record("first"))
	bus.Subscribe(events.TopicComicsUnprocessed, record("second"))
	runBus(t, bus)

	if err := bus.Publish(events.Event{Topic: events.TopicComicsUnprocessed, ComicID: 42}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestBusRecoversHandlerPanics(t *testing.T) {
	bus := events.NewBus(8, logging.NewNop())
	reached := make(chan struct{}, 1)
	bus.Subscribe(events.TopicPagesHashed, func(context.Context, events.Event) { panic("boom") })
	bus.Subscribe(events.TopicPagesHashed, func(context.Context, events.Event) { reached <- struct{}{} })
	runBus(t, bus)

	_ = bus.Publish(events.Event{Topic: events.TopicPagesHashed})
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler was not reached after panic")
	}
	deadline := time.Now().Add(2 * time.Second)
	for bus.Metrics().Panics != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected panic counter, got %+v", bus.Metrics())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := events.NewBus(1, logging.NewNop())

	if err := bus.Publish(events.Event{Topic: events.TopicComicsUnprocessed}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := bus.Publish(events.Event{Topic: events.TopicComicsUnprocessed})
	if !errors.Is(err, events.ErrBusFull) {
		t.Fatalf("expected ErrBusFull, got %v", err)
	}
	if got := bus.Metrics(); got.Published != 1 || got.Dropped != 1 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}
