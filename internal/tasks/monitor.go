package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"comicshelf/internal/logging"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 50
	pruneEvery          = 10 * time.Minute
)

// MonitorState describes what the queue monitor is doing.
type MonitorState int32

const (
	MonitorIdle MonitorState = iota
	MonitorDraining
	MonitorSleeping
)

func (s MonitorState) String() string {
	switch s {
	case MonitorDraining:
		return "draining"
	case MonitorSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

// TaskQueue is the persisted queue the monitor drains.
type TaskQueue interface {
	ClaimTasks(ctx context.Context, limit int) ([]*store.PersistedTask, error)
	FinishTask(ctx context.Context, id int64, failure string) error
	PruneFinishedTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

// Runner accepts decoded tasks. *Manager satisfies it.
type Runner interface {
	RunTask(ctx context.Context, task Task) error
	RunTaskFor(ctx context.Context, task Task, origin *store.PersistedTask) error
}

// MonitorConfig configures a Monitor. A zero Retention disables pruning.
type MonitorConfig struct {
	Queue        TaskQueue
	Registry     *Registry
	Runner       Runner
	PollInterval time.Duration
	BatchSize    int
	Retention    time.Duration
	Logger       *slog.Logger
}

// Monitor drains the persisted queue. Each Start claims one batch, dispatches
// it, and sleeps the poll interval; AfterExecution puts the monitor back on
// the runner so the cycle repeats until the context ends.
type Monitor struct {
	queue     TaskQueue
	registry  *Registry
	runner    Runner
	interval  time.Duration
	batchSize int
	retention time.Duration
	logger    *slog.Logger

	state      atomic.Int32
	cycles     atomic.Int64
	dispatched atomic.Int64

	pruneMu   sync.Mutex
	lastPrune time.Time
}

// NewMonitor constructs a queue monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		queue:     cfg.Queue,
		registry:  registry,
		runner:    cfg.Runner,
		interval:  interval,
		batchSize: batch,
		retention: cfg.Retention,
		logger:    logging.NewComponentLogger(logger, "queue-monitor"),
	}
}

func (m *Monitor) Encode() (Type, Properties) { return TypeMonitorQueue, nil }

func (m *Monitor) Description() string { return "Monitor task queue" }

func (m *Monitor) Perpetual() bool { return true }

// State reports the current monitor state.
func (m *Monitor) State() MonitorState { return MonitorState(m.state.Load()) }

// Cycles reports how many drain cycles have completed.
func (m *Monitor) Cycles() int64 { return m.cycles.Load() }

// Dispatched reports how many queued tasks were handed to the runner.
func (m *Monitor) Dispatched() int64 { return m.dispatched.Load() }

// Start drains one batch and then sleeps. Cancellation during the sleep is a
// shutdown and is not reported as an error. Decode failures are returned
// after the sleep so the next cycle still runs.
func (m *Monitor) Start(ctx context.Context) error {
	m.setState(MonitorDraining)
	drainErr := m.drain(ctx)
	m.prune(ctx)

	m.setState(MonitorSleeping)
	timer := time.NewTimer(m.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		m.setState(MonitorIdle)
		m.logger.Info("queue monitor stopping",
			logging.Int64("cycles", m.cycles.Load()),
			logging.Int64("dispatched", m.dispatched.Load()),
			logging.String(logging.FieldEventType, "queue_monitor_shutdown"),
		)
		return nil
	case <-timer.C:
	}
	m.setState(MonitorIdle)
	return drainErr
}

// AfterExecution resubmits the monitor unless the context has ended.
func (m *Monitor) AfterExecution(ctx context.Context) {
	m.cycles.Add(1)
	if ctx.Err() != nil {
		m.logger.Debug("queue monitor not rescheduled", logging.String("reason", "context done"))
		return
	}
	if err := m.runner.RunTask(ctx, m); err != nil && !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
		logging.ErrorWithContext(m.logger, "queue monitor could not reschedule", "queue_monitor_stalled",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queued tasks are not picked up until restart"),
		)
	}
}

func (m *Monitor) drain(ctx context.Context) error {
	records, err := m.queue.ClaimTasks(ctx, m.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return services.Wrap(services.ErrTransient, "tasks", "claim tasks", "Failed to claim queued tasks", err)
	}
	if len(records) == 0 {
		return nil
	}
	m.logger.Debug("claimed queued tasks", logging.Int("count", len(records)))

	var errs []error
	for _, record := range records {
		task, err := m.registry.Decode(record)
		if err != nil {
			err = services.Wrap(services.ErrValidation, "tasks", "decode task", "Queued task cannot be decoded", err)
			m.fail(ctx, record, err)
			errs = append(errs, err)
			continue
		}
		if err := m.runner.RunTaskFor(ctx, task, record); err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				// Remaining records stay claimed and are released on restart.
				break
			}
			m.fail(ctx, record, err)
			errs = append(errs, err)
			continue
		}
		m.dispatched.Add(1)
	}
	return errors.Join(errs...)
}

func (m *Monitor) fail(ctx context.Context, record *store.PersistedTask, cause error) {
	logging.ErrorWithContext(m.logger, "queued task rejected", "task_dispatch_failed",
		logging.Int64(logging.FieldTaskID, record.ID),
		logging.String(logging.FieldTaskType, record.TaskType),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, services.ErrorHint(cause)),
		logging.String(logging.FieldImpact, "task dropped from the queue"),
	)
	if err := m.queue.FinishTask(context.WithoutCancel(ctx), record.ID, cause.Error()); err != nil {
		m.logger.Warn("failed to record rejected task", logging.Int64(logging.FieldTaskID, record.ID), logging.Error(err))
	}
}

func (m *Monitor) prune(ctx context.Context) {
	if m.retention <= 0 {
		return
	}
	m.pruneMu.Lock()
	now := time.Now()
	if !m.lastPrune.IsZero() && now.Sub(m.lastPrune) < pruneEvery {
		m.pruneMu.Unlock()
		return
	}
	m.lastPrune = now
	m.pruneMu.Unlock()

	removed, err := m.queue.PruneFinishedTasks(ctx, now.Add(-m.retention))
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("failed to prune finished tasks", logging.Error(err))
		}
		return
	}
	if removed > 0 {
		m.logger.Info("pruned finished tasks",
			logging.Int64("removed", removed),
			logging.Duration("retention", m.retention),
		)
	}
}

func (m *Monitor) setState(state MonitorState) {
	m.state.Store(int32(state))
}
