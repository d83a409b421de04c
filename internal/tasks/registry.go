package tasks

import (
	"fmt"
	"sort"
	"sync"

	"comicshelf/internal/store"
)

// Decoder turns persisted properties back into an executable task.
type Decoder func(props Properties) (Task, error)

// Registry maps type tags to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Type]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[Type]Decoder)}
}

// Register installs the decoder for taskType, replacing any previous one.
func (r *Registry) Register(taskType Type, decoder Decoder) {
	if decoder == nil {
		return
	}
	r.mu.Lock()
	r.decoders[taskType] = decoder
	r.mu.Unlock()
}

// Types lists the registered tags in sorted order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.decoders))
	for t := range r.decoders {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Decode resolves the decoder for record and builds its task.
func (r *Registry) Decode(record *store.PersistedTask) (Task, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidProperties)
	}
	r.mu.RLock()
	decoder, ok := r.decoders[Type(record.TaskType)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %q (task %d)", ErrNoDecoder, record.TaskType, record.ID)
	}
	props := make(Properties, len(record.Properties))
	for k, v := range record.Properties {
		props[k] = v
	}
	task, err := decoder(props)
	if err != nil {
		return nil, fmt.Errorf("decode %s task %d: %w", record.TaskType, record.ID, err)
	}
	return task, nil
}
