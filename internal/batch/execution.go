package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"comicshelf/internal/config"
	"comicshelf/internal/store"
)

// Execution is the run handle returned by Launch.
type Execution struct {
	ID        string
	JobID     string
	Params    Params
	StartedAt time.Time

	read    atomic.Int64
	written atomic.Int64
	skipped atomic.Int64

	mu     sync.Mutex
	status store.ExecutionStatus
	err    error
	done   chan struct{}
}

func newExecution(id, jobID string, params Params) *Execution {
	return &Execution{
		ID:        id,
		JobID:     jobID,
		Params:    params,
		StartedAt: time.Now().UTC(),
		status:    store.ExecutionStarting,
		done:      make(chan struct{}),
	}
}

// AddRead records items read by the job.
func (e *Execution) AddRead(n int64) { e.read.Add(n) }

// AddWritten records items the job changed.
func (e *Execution) AddWritten(n int64) { e.written.Add(n) }

// Counts returns the read, written, and skipped counters.
func (e *Execution) Counts() (read, written, skipped int64) {
	return e.read.Load(), e.written.Load(), e.skipped.Load()
}

// ErrorThreshold returns the item failure cap carried in the parameters,
// falling back to the configured default.
func (e *Execution) ErrorThreshold() int64 {
	if threshold, ok := e.Params.Long(ParamErrorThreshold); ok && threshold > 0 {
		return threshold
	}
	return config.DefaultErrorThreshold
}

// RecordFailure counts a skipped item and returns ErrTooManyErrors once the
// number of skipped items exceeds the error threshold.
func (e *Execution) RecordFailure(err error) error {
	skipped := e.skipped.Add(1)
	if threshold := e.ErrorThreshold(); skipped > threshold {
		return fmt.Errorf("%w: %d failures (threshold %d), last: %w", ErrTooManyErrors, skipped, threshold, err)
	}
	return nil
}

// Status returns the current execution status.
func (e *Execution) Status() store.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the failure that ended the execution, if any.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Execution) setStatus(status store.ExecutionStatus, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.err = err
}

// Done is closed when the execution finishes.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the execution finishes or ctx is cancelled.
func (e *Execution) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Execution) record(endedAt *time.Time) *store.Execution {
	read, written, skipped := e.Counts()
	params, _ := e.Params.MarshalJSON()
	rec := &store.Execution{
		ID:         e.ID,
		JobID:      e.JobID,
		ParamsKey:  e.Params.Key(),
		ParamsJSON: string(params),
		Status:     e.Status(),
		StartedAt:  e.StartedAt,
		EndedAt:    endedAt,
		ReadCount:  read,
		WriteCount: written,
		SkipCount:  skipped,
	}
	if err := e.Err(); err != nil {
		rec.ExitMessage = err.Error()
	}
	return rec
}
