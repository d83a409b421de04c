package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"comicshelf/internal/batch"
	"comicshelf/internal/config"
	"comicshelf/internal/events"
	"comicshelf/internal/jobs"
	"comicshelf/internal/logging"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
)

// ErrAlreadyRunning is returned when another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another comicshelf daemon instance is already running")

// Components are the long-running services the daemon supervises.
type Components struct {
	Bus       *events.Bus
	Engine    *batch.Engine
	Manager   *tasks.Manager
	Monitor   *tasks.Monitor
	Scheduler *jobs.Scheduler
}

func (c Components) validate() error {
	var missing []string
	if c.Bus == nil {
		missing = append(missing, "bus")
	}
	if c.Engine == nil {
		missing = append(missing, "engine")
	}
	if c.Manager == nil {
		missing = append(missing, "task manager")
	}
	if c.Monitor == nil {
		missing = append(missing, "queue monitor")
	}
	if c.Scheduler == nil {
		missing = append(missing, "scheduler")
	}
	if len(missing) > 0 {
		return fmt.Errorf("daemon components missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Daemon runs the comicshelf services under a single-instance lock.
type Daemon struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	comps  Components

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	started atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	LockFilePath string
	DatabasePath string
	Tasks        tasks.Status
	MonitorState string
	Bus          events.Metrics
	ActiveJobs   []string
	Schedule     []jobs.ScheduleEntry
	Queue        store.TaskStats
	Comics       map[store.ComicState]int
}

// New constructs a daemon around already wired components.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if err := comps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		store:    st,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comps:    comps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the lock, recovers interrupted work, and blocks running every
// component until ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.recoverInterrupted(ctx)

	group, gctx := errgroup.WithContext(ctx)
	if err := d.comps.Manager.Start(gctx); err != nil {
		return fmt.Errorf("start task manager: %w", err)
	}
	if err := d.comps.Manager.RunTask(gctx, d.comps.Monitor); err != nil {
		d.comps.Manager.Stop()
		return fmt.Errorf("start queue monitor: %w", err)
	}

	group.Go(func() error { return d.comps.Bus.Run(gctx) })
	group.Go(func() error { return d.comps.Scheduler.Run(gctx) })
	group.Go(func() error {
		<-gctx.Done()
		d.comps.Manager.Stop()
		return nil
	})

	d.started.Store(time.Now().UnixMilli())
	d.running.Store(true)
	d.logger.Info("comicshelf daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	err = group.Wait()
	d.comps.Engine.Stop()
	d.running.Store(false)
	d.logger.Info("comicshelf daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// recoverInterrupted resets state left by a process that died mid-flight.
func (d *Daemon) recoverInterrupted(ctx context.Context) {
	abandoned, err := d.store.AbandonRunningExecutions(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to abandon stale executions", "execution_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs with identical parameters may refuse to restart"),
		)
	} else if abandoned > 0 {
		d.logger.Info("marked stale executions abandoned", logging.Int64("count", abandoned))
	}

	released, err := d.store.RequeueUnfinishedTasks(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to release claimed tasks", "task_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "tasks claimed before the last shutdown stay unprocessed"),
		)
	} else if released > 0 {
		d.logger.Info("released tasks claimed before shutdown", logging.Int64("count", released))
	}
}

// Running reports whether Run is currently active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		DatabasePath: d.cfg.DatabasePath(),
		Tasks:        d.comps.Manager.Status(),
		MonitorState: d.comps.Monitor.State().String(),
		Bus:          d.comps.Bus.Metrics(),
		Schedule:     d.comps.Scheduler.Entries(),
	}
	if ms := d.started.Load(); ms > 0 && status.Running {
		status.StartedAt = time.UnixMilli(ms)
	}
	for _, exec := range d.comps.Engine.Active() {
		status.ActiveJobs = append(status.ActiveJobs, exec.JobID)
	}
	sort.Strings(status.ActiveJobs)

	if stats, err := d.store.TaskStats(ctx); err == nil {
		status.Queue = stats
	} else {
		d.logger.Warn("failed to read task stats", logging.Error(err))
	}
	if comics, err := d.store.ComicStats(ctx); err == nil {
		status.Comics = comics
	} else {
		d.logger.Warn("failed to read comic stats", logging.Error(err))
	}
	return status
}

// ProcessInfo reports whether a daemon holds the lock for cfg and, when it
// does, the PID it recorded.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("config is required")
	}
	probe := flock.New(cfg.LockPath())
	ok, err := probe.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, 0, nil
	}
	return true, readPID(cfg.PIDPath()), nil
}

// WritePIDFile records the current process id at path.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
