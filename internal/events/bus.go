package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"comicshelf/internal/logging"
)

// ErrBusFull is returned by Publish when the dispatch buffer is saturated.
var ErrBusFull = errors.New("events: bus buffer full")

// Topic names a category of lifecycle event.
type Topic string

const (
	TopicComicsUnprocessed         Topic = "comics.unprocessed"
	TopicComicsProcessed           Topic = "comics.processed"
	TopicPagesHashRequired         Topic = "pages.hash_required"
	TopicPagesHashed               Topic = "pages.hashed"
	TopicComicsMarkedForDeletion   Topic = "comics.marked_for_deletion"
	TopicComicsMarkedForRecreation Topic = "comics.marked_for_recreation"
	TopicComicsMarkedForMetadata   Topic = "comics.marked_for_metadata"
	TopicComicsMarkedForOrganizing Topic = "comics.marked_for_organization"
)

// Event is a single bus message.
type Event struct {
	Topic    Topic
	ComicID  int64
	PageID   int64
	Reason   string
	Occurred time.Time
}

// Handler consumes an event on the dispatch goroutine.
type Handler func(ctx context.Context, event Event)

// Metrics is a point-in-time snapshot of bus counters.
type Metrics struct {
	Published  int64
	Dispatched int64
	Dropped    int64
	Panics     int64
}

// Bus dispatches published events to topic subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]Handler
	queue       chan Event
	logger      *slog.Logger

	published  atomic.Int64
	dispatched atomic.Int64
	dropped    atomic.Int64
	panics     atomic.Int64
}

const defaultBuffer = 256

// NewBus constructs a bus with the given buffer size.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subscribers: make(map[Topic][]Handler),
		queue:       make(chan Event, buffer),
		logger:      logging.NewComponentLogger(logger, "events"),
	}
}

// Subscribe registers handler for topic. Handlers for one topic run in
// registration order.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publish enqueues event for dispatch without blocking.
func (b *Bus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	select {
	case b.queue <- event:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		return fmt.Errorf("%w: %s", ErrBusFull, event.Topic)
	}
}

// Run dispatches events until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-b.queue:
			b.dispatch(ctx, event)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(ctx, handler, event)
	}
	b.dispatched.Add(1)
}

func (b *Bus) invoke(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			logging.ErrorWithContext(b.logger, "event handler panicked", "event_handler_panic",
				logging.String("topic", string(event.Topic)),
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "inspect the subscriber registered for this topic"),
			)
		}
	}()
	handler(ctx, event)
}

// Metrics returns the bus counters.
func (b *Bus) Metrics() Metrics {
	return Metrics{
		Published:  b.published.Load(),
		Dispatched: b.dispatched.Load(),
		Dropped:    b.dropped.Load(),
		Panics:     b.panics.Load(),
	}
}
