package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"comicshelf/internal/logging"
)

// ErrIllegalTransition marks an event fired from a state with no transition.
var ErrIllegalTransition = errors.New("lifecycle: illegal transition")

// Listener observes a completed transition. Returned errors are logged.
type Listener[S ~string, E any] func(ctx context.Context, from, to S, entity *E) error

// Transition is one row of a transition table.
type Transition[S ~string, E any] struct {
	From  []S
	To    S
	Apply func(entity *E)
}

func (t Transition[S, E]) allows(state S) bool {
	for _, from := range t.From {
		if from == state {
			return true
		}
	}
	return false
}

// Accessors binds the generic handler to a concrete entity type.
type Accessors[S ~string, E any] struct {
	State    func(entity *E) S
	SetState func(entity *E, state S)
	Save     func(ctx context.Context, entity *E) error
	Attrs    func(entity *E) []logging.Attr
}

// Handler is an event-driven state machine for one entity kind.
type Handler[S ~string, V ~string, E any] struct {
	kind        string
	transitions map[V]Transition[S, E]
	access      Accessors[S, E]
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners []Listener[S, E]
}

// NewHandler constructs a handler from a transition table.
func NewHandler[S ~string, V ~string, E any](kind string, transitions map[V]Transition[S, E], access Accessors[S, E], logger *slog.Logger) *Handler[S, V, E] {
	return &Handler[S, V, E]{
		kind:        kind,
		transitions: transitions,
		access:      access,
		logger:      logging.NewComponentLogger(logger, kind+"-state"),
	}
}

// AddListener registers a listener. Listeners are registered once while the
// daemon wires its components and run in registration order.
func (h *Handler[S, V, E]) AddListener(listener Listener[S, E]) {
	if listener == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, listener)
}

// FireEvent applies event to entity. A nil entity is ignored.
func (h *Handler[S, V, E]) FireEvent(ctx context.Context, entity *E, event V) {
	if entity == nil {
		h.logger.Debug("event fired without entity", logging.String("event", string(event)))
		return
	}

	logger := logging.WithContext(ctx, h.logger)
	if h.access.Attrs != nil {
		logger = logger.With(logging.Args(h.access.Attrs(entity)...)...)
	}

	from := h.access.State(entity)
	transition, ok := h.transitions[event]
	if !ok || !transition.allows(from) {
		err := fmt.Errorf("%w: %s %s from %s", ErrIllegalTransition, h.kind, event, from)
		logging.ErrorWithContext(logger, "illegal state transition", "illegal_transition",
			logging.String("event", string(event)),
			logging.String("state", string(from)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the caller fired an event that is not valid for the entity's current state"),
		)
		return
	}

	if transition.Apply != nil {
		transition.Apply(entity)
	}
	h.access.SetState(entity, transition.To)

	if err := h.access.Save(ctx, entity); err != nil {
		// The in-memory entity keeps the new state; the next successful save
		// reconciles the store.
		logging.ErrorWithContext(logger, "state change not persisted", "state_persist_failed",
			logging.String("event", string(event)),
			logging.String("from", string(from)),
			logging.String("to", string(transition.To)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database health; listeners were skipped for this transition"),
		)
		return
	}

	logger.Debug("state transition",
		logging.String("event", string(event)),
		logging.String("from", string(from)),
		logging.String("to", string(transition.To)),
	)

	h.mu.RLock()
	listeners := append([]Listener[S, E](nil), h.listeners...)
	h.mu.RUnlock()

	for idx, listener := range listeners {
		h.notify(ctx, logger, idx, listener, from, transition.To, entity)
	}
}

func (h *Handler[S, V, E]) notify(ctx context.Context, logger *slog.Logger, idx int, listener Listener[S, E], from, to S, entity *E) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "state listener panicked", "state_listener_panic",
				logging.Int("listener", idx),
				logging.Any("panic", r),
			)
		}
	}()
	if err := listener(ctx, from, to, entity); err != nil {
		logging.WarnWithContext(logger, "state listener failed", "state_listener_failed",
			logging.Int("listener", idx),
			logging.String("from", string(from)),
			logging.String("to", string(to)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "downstream consumers may miss this transition"),
		)
	}
}
