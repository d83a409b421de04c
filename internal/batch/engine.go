package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

// Job describes a registered batch job.
type Job struct {
	ID          string
	Description string
	// Required lists parameters every launch must carry.
	Required []string
	// Restartable allows relaunching an identical-parameter instance that
	// previously failed.
	Restartable bool
	// Validate performs job-specific parameter checks.
	Validate func(Params) error
	Run      func(ctx context.Context, exec *Execution) error
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	InsertExecution(ctx context.Context, exec *store.Execution) error
	UpdateExecution(ctx context.Context, exec *store.Execution) error
	FindExecutions(ctx context.Context, jobID, paramsKey string) ([]*store.Execution, error)
}

// Engine registers jobs and runs their executions.
type Engine struct {
	store    ExecutionStore
	notifier notifications.Service
	logger   *slog.Logger

	mu       sync.RWMutex
	jobs     map[string]Job
	active   map[string]map[string]*Execution
	reserved map[string]bool
	stopped  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine constructs an engine persisting to st.
func NewEngine(st ExecutionStore, notifier notifications.Service, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "batch"),
		jobs:     make(map[string]Job),
		active:   make(map[string]map[string]*Execution),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Register adds a job definition.
func (e *Engine) Register(job Job) error {
	job.ID = strings.TrimSpace(job.ID)
	if job.ID == "" || job.Run == nil {
		return fmt.Errorf("register job: identifier and run function are required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	e.jobs[job.ID] = job
	return nil
}

// Jobs returns the registered jobs sorted by identifier.
func (e *Engine) Jobs() []Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	jobs := make([]Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// HasActiveExecutions reports whether jobID has an execution in progress.
func (e *Engine) HasActiveExecutions(jobID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.active[jobID]) > 0 || e.reserved[jobID]
}

// Active returns the running executions ordered by start time.
func (e *Engine) Active() []*Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var running []*Execution
	for _, byID := range e.active {
		for _, exec := range byID {
			running = append(running, exec)
		}
	}
	sort.Slice(running, func(i, j int) bool { return running[i].StartedAt.Before(running[j].StartedAt) })
	return running
}

// Launch starts a new execution of jobID. The execution runs asynchronously;
// the returned handle can be waited on. The job's slot is reserved under the
// lock so the store lookups run without blocking other callers.
func (e *Engine) Launch(ctx context.Context, jobID string, params Params) (*Execution, error) {
	job, err := e.reserve(jobID, params)
	if err != nil {
		return nil, err
	}

	params = params.Clone()
	exec, err := e.prepare(ctx, job, params)
	if err != nil {
		e.release(jobID, nil)
		return nil, err
	}
	e.release(jobID, exec)
	go e.run(job, exec)
	return exec, nil
}

// reserve checks that jobID may start and claims its slot. The wait group is
// incremented here so Stop waits for a launch in progress.
func (e *Engine) reserve(jobID string, params Params) (Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return Job{}, ErrStopped
	}
	job, ok := e.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if err := validateParams(job, params); err != nil {
		return Job{}, err
	}
	if len(e.active[jobID]) > 0 || e.reserved[jobID] {
		return Job{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
	}
	if e.reserved == nil {
		e.reserved = make(map[string]bool)
	}
	e.reserved[jobID] = true
	e.wg.Add(1)
	return job, nil
}

func (e *Engine) prepare(ctx context.Context, job Job, params Params) (*Execution, error) {
	prior, err := e.store.FindExecutions(ctx, job.ID, params.Key())
	if err != nil {
		return nil, fmt.Errorf("look up prior executions: %w", err)
	}
	for _, rec := range prior {
		switch rec.Status {
		case store.ExecutionCompleted:
			return nil, fmt.Errorf("%w: %s (%s)", ErrAlreadyComplete, job.ID, rec.ID)
		case store.ExecutionFailed, store.ExecutionAbandoned:
			if !job.Restartable {
				return nil, fmt.Errorf("%w: %s (%s)", ErrRestart, job.ID, rec.ID)
			}
		}
	}

	exec := newExecution(uuid.NewString(), job.ID, params)
	if err := e.store.InsertExecution(ctx, exec.record(nil)); err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}
	return exec, nil
}

// release drops the reservation for jobID. A nil exec means the launch was
// abandoned.
func (e *Engine) release(jobID string, exec *Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.reserved, jobID)
	if exec == nil {
		e.wg.Done()
		return
	}
	if e.active[jobID] == nil {
		e.active[jobID] = make(map[string]*Execution)
	}
	e.active[jobID][exec.ID] = exec
}

func validateParams(job Job, params Params) error {
	var missing []string
	for _, name := range job.Required {
		if !params.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrInvalidParameters, job.ID, strings.Join(missing, ", "))
	}
	if job.Validate != nil {
		if err := job.Validate(params); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidParameters, job.ID, err)
		}
	}
	return nil
}

func (e *Engine) run(job Job, exec *Execution) {
	defer e.wg.Done()

	ctx := services.WithJobID(e.baseCtx, job.ID)
	ctx = services.WithExecutionID(ctx, exec.ID)
	logger := logging.WithContext(ctx, e.logger)
	// Bookkeeping writes must land even while the engine shuts down.
	persistCtx := context.WithoutCancel(ctx)

	exec.setStatus(store.ExecutionStarted, nil)
	e.persist(persistCtx, logger, exec, nil)
	logger.Info("job started", logging.String("params", exec.Params.Key()))
	e.publish(persistCtx, logger, notifications.EventJobLaunched, exec)

	started := time.Now()
	err := e.invoke(ctx, job, exec)
	ended := time.Now().UTC()
	read, written, skipped := exec.Counts()

	if err != nil {
		exec.setStatus(store.ExecutionFailed, err)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started)),
			logging.Int64("read", read),
			logging.Int64("written", written),
			logging.Int64("skipped", skipped),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
	} else {
		exec.setStatus(store.ExecutionCompleted, nil)
		logger.Info("job completed",
			logging.Duration("elapsed", time.Since(started)),
			logging.Int64("read", read),
			logging.Int64("written", written),
			logging.Int64("skipped", skipped),
		)
	}
	e.persist(persistCtx, logger, exec, &ended)

	e.mu.Lock()
	delete(e.active[job.ID], exec.ID)
	if len(e.active[job.ID]) == 0 {
		delete(e.active, job.ID)
	}
	e.mu.Unlock()

	if err != nil {
		e.publish(persistCtx, logger, notifications.EventJobFailed, exec)
	} else if written > 0 {
		e.publish(persistCtx, logger, notifications.EventJobCompleted, exec)
	}
	close(exec.done)
}

func (e *Engine) invoke(ctx context.Context, job Job, exec *Execution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Run(ctx, exec)
}

func (e *Engine) persist(ctx context.Context, logger *slog.Logger, exec *Execution, endedAt *time.Time) {
	if err := e.store.UpdateExecution(ctx, exec.record(endedAt)); err != nil {
		logging.WarnWithContext(logger, "execution record not updated", "execution_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "execution history may show a stale status"),
		)
	}
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, exec *Execution) {
	read, written, skipped := exec.Counts()
	payload := notifications.Payload{
		"jobId":       exec.JobID,
		"executionId": exec.ID,
		"read":        read,
		"written":     written,
		"skipped":     skipped,
	}
	if err := exec.Err(); err != nil {
		payload["error"] = err.Error()
	}
	if err := e.notifier.Publish(ctx, event, payload); err != nil && !errors.Is(err, notifications.ErrThrottled) {
		logger.Debug("job notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// Stop cancels running executions and waits for them to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}
