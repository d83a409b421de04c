package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
)

// OriginRecorder stamps persisted task records once their task has run.
type OriginRecorder interface {
	FinishTask(ctx context.Context, id int64, failure string) error
}

// ManagerConfig configures a Manager. Recorder and Notifier are optional.
type ManagerConfig struct {
	Workers   int
	QueueSize int
	Recorder  OriginRecorder
	Notifier  notifications.Service
	Logger    *slog.Logger
}

// Metrics tracks task counts.
type Metrics struct {
	Submitted atomic.Int64
	Completed atomic.Int64
	Failed    atomic.Int64
	Active    atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Submitted int64
	Completed int64
	Failed    int64
	Active    int64
}

// Status summarizes the manager for diagnostics.
type Status struct {
	Running   bool
	Workers   int
	Metrics   MetricsSnapshot
	LastError string
	LastTask  string
}

type submission struct {
	task   Task
	origin *store.PersistedTask
}

// Manager executes tasks on a fixed pool of workers. Perpetual tasks run one
// at a time on a separate control lane so they never starve the pool.
type Manager struct {
	workers   int
	queueSize int
	recorder  OriginRecorder
	notifier  notifications.Service
	logger    *slog.Logger

	metrics Metrics

	mu       sync.RWMutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	work     chan submission
	control  chan submission
	lastErr  error
	lastTask string
}

// NewManager constructs a stopped manager.
func NewManager(cfg ManagerConfig) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notifications.Noop()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		workers:   workers,
		queueSize: queueSize,
		recorder:  cfg.Recorder,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "task-manager"),
	}
}

// Start launches the workers and the control lane.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("task manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.work = make(chan submission, m.queueSize)
	m.control = make(chan submission, 1)
	m.running = true

	m.wg.Add(m.workers + 1)
	for i := 0; i < m.workers; i++ {
		go m.loop(runCtx, m.work)
	}
	go m.loop(runCtx, m.control)

	m.logger.Info("task manager started",
		logging.Int("workers", m.workers),
		logging.Int("queue_size", m.queueSize),
		logging.String(logging.FieldEventType, "task_manager_started"),
	)
	return nil
}

// Stop cancels running tasks and waits for the lanes to exit. Submissions
// still buffered are dropped; their persisted records stay claimed and are
// released by the store on the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("task manager stopped",
		logging.Int64("completed", m.metrics.Completed.Load()),
		logging.Int64("failed", m.metrics.Failed.Load()),
		logging.String(logging.FieldEventType, "task_manager_stopped"),
	)
}

// Run starts the manager and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

// RunTask submits task for asynchronous execution.
func (m *Manager) RunTask(ctx context.Context, task Task) error {
	return m.RunTaskFor(ctx, task, nil)
}

// RunTaskFor submits task together with the queue record it was decoded
// from. The record is stamped finished once the task has run. The call blocks
// while the work buffer is full.
func (m *Manager) RunTaskFor(ctx context.Context, task Task, origin *store.PersistedTask) error {
	if task == nil {
		return errors.New("run task: task is required")
	}
	m.mu.RLock()
	running := m.running
	runCtx := m.runCtx
	lane := m.work
	if isPerpetual(task) {
		lane = m.control
	}
	m.mu.RUnlock()
	if !running {
		return ErrQueueClosed
	}

	select {
	case lane <- submission{task: task, origin: origin}:
		m.metrics.Submitted.Add(1)
		return nil
	case <-runCtx.Done():
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics returns a snapshot of the task counters.
func (m *Manager) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Submitted: m.metrics.Submitted.Load(),
		Completed: m.metrics.Completed.Load(),
		Failed:    m.metrics.Failed.Load(),
		Active:    m.metrics.Active.Load(),
	}
}

// Status returns the latest manager information.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := Status{
		Running:  m.running,
		Workers:  m.workers,
		Metrics:  m.Metrics(),
		LastTask: m.lastTask,
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	return status
}

func (m *Manager) loop(ctx context.Context, lane <-chan submission) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-lane:
			if ctx.Err() != nil {
				return
			}
			m.execute(ctx, sub)
		}
	}
}

func (m *Manager) execute(ctx context.Context, sub submission) {
	m.metrics.Active.Add(1)
	defer m.metrics.Active.Add(-1)

	task := sub.task
	if sub.origin != nil {
		ctx = services.WithTaskID(ctx, sub.origin.ID)
	}
	logger := logging.WithContext(ctx, m.logger).With(
		logging.String(logging.FieldTaskType, taskType(task)),
		logging.String("task", task.Description()),
	)

	started := time.Now()
	err := m.start(ctx, task)
	m.after(ctx, logger, task)

	if sub.origin != nil {
		m.finish(ctx, logger, sub.origin, err)
	}
	m.setLastTask(task.Description())

	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "task failed", "task_failed",
			logging.Error(err),
			logging.Duration("duration", time.Since(started)),
			logging.String("failure_class", services.Classify(err)),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "task was not completed"),
		)
		if sub.origin != nil {
			m.notifyFailure(ctx, logger, task, err)
		}
		m.metrics.Failed.Add(1)
		return
	}
	m.metrics.Completed.Add(1)
	logger.Debug("task completed", logging.Duration("duration", time.Since(started)))
}

func (m *Manager) start(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task.Start(ctx)
}

func (m *Manager) after(ctx context.Context, logger *slog.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "task cleanup panicked", "task_after_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldImpact, "post-execution hook did not finish"),
			)
		}
	}()
	task.AfterExecution(ctx)
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, origin *store.PersistedTask, taskErr error) {
	if m.recorder == nil {
		return
	}
	failure := ""
	if taskErr != nil {
		failure = taskErr.Error()
	}
	if err := m.recorder.FinishTask(context.WithoutCancel(ctx), origin.ID, failure); err != nil {
		logging.WarnWithContext(logger, "failed to record task outcome", "task_finish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue record stays claimed until the next restart"),
		)
	}
}

func (m *Manager) notifyFailure(ctx context.Context, logger *slog.Logger, task Task, taskErr error) {
	payload := notifications.Payload{
		"task":  task.Description(),
		"type":  taskType(task),
		"error": taskErr.Error(),
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), notifications.EventTaskFailed, payload); err != nil {
		if errors.Is(err, notifications.ErrThrottled) {
			return
		}
		logger.Debug("task failure notification failed", logging.Error(err))
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(description string) {
	m.mu.Lock()
	m.lastTask = description
	m.mu.Unlock()
}

func isPerpetual(task Task) bool {
	p, ok := task.(Perpetual)
	return ok && p.Perpetual()
}

func taskType(task Task) string {
	if enc, ok := task.(Encoder); ok {
		t, _ := enc.Encode()
		return string(t)
	}
	return fmt.Sprintf("%T", task)
}
