package daemonrun

import (
	"fmt"
	"log/slog"
	"time"

	"comicshelf/internal/batch"
	"comicshelf/internal/config"
	"comicshelf/internal/daemon"
	"comicshelf/internal/events"
	"comicshelf/internal/jobs"
	"comicshelf/internal/lifecycle"
	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/options"
	"comicshelf/internal/organizer"
	"comicshelf/internal/store"
	"comicshelf/internal/tasks"
)

const busBuffer = 256

// Runtime is the fully wired set of services for one daemon process.
type Runtime struct {
	Options    *options.Store
	Comics     *lifecycle.ComicHandler
	Pages      *lifecycle.PageHandler
	Initiators []*jobs.Initiator
	Registry   *tasks.Registry
	Components daemon.Components
}

// Assemble wires the lifecycle handlers, jobs, initiators, scheduler, task
// manager and queue monitor around st.
func Assemble(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) (*Runtime, error) {
	if cfg == nil || st == nil {
		return nil, fmt.Errorf("assemble: config and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}

	opts := options.New(st, cfg, logger)
	bus := events.NewBus(busBuffer, logger)

	comics := lifecycle.NewComicHandler(st, logger)
	comics.AddListener(lifecycle.ComicNotificationListener(notifier, logger))
	comics.AddListener(lifecycle.ComicTriggerListener(bus))
	pages := lifecycle.NewPageHandler(st, logger)
	pages.AddListener(lifecycle.PageNotificationListener(notifier, logger))

	org := organizer.New(logger)
	engine := batch.NewEngine(st, notifier, logger)
	bodies := jobs.NewBodies(jobs.BodiesConfig{
		Store:     st,
		Comics:    comics,
		Pages:     pages,
		Options:   opts,
		Organizer: org,
		Bus:       bus,
		CacheDir:  cfg.Paths.ImageCacheDir,
		Logger:    logger,
	})
	if err := bodies.Register(engine); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}

	initiators := jobs.NewInitiators(jobs.Definitions(st, opts), jobs.Deps{
		Probes:   st,
		Registry: engine,
		Options:  opts,
		Runner:   engine,
	}, logger)
	scheduler, err := jobs.NewScheduler(initiators, cfg.Schedule, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	scheduler.Subscribe(bus, opts)

	manager := tasks.NewManager(tasks.ManagerConfig{
		Workers:  cfg.Tasks.Workers,
		Recorder: st,
		Notifier: notifier,
		Logger:   logger,
	})
	registry := tasks.NewDefaultRegistry(&tasks.Library{
		Store:     st,
		Comics:    comics,
		Organizer: org,
		Config:    cfg,
		Logger:    logger,
	})
	monitor := tasks.NewMonitor(tasks.MonitorConfig{
		Queue:        st,
		Registry:     registry,
		Runner:       manager,
		PollInterval: time.Duration(cfg.Tasks.QueuePollInterval) * time.Millisecond,
		BatchSize:    cfg.Tasks.ClaimBatchSize,
		Retention:    time.Duration(cfg.Tasks.RetentionHours) * time.Hour,
		Logger:       logger,
	})

	return &Runtime{
		Options:    opts,
		Comics:     comics,
		Pages:      pages,
		Initiators: initiators,
		Registry:   registry,
		Components: daemon.Components{
			Bus:       bus,
			Engine:    engine,
			Manager:   manager,
			Monitor:   monitor,
			Scheduler: scheduler,
		},
	}, nil
}
