package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"comicshelf/internal/events"
	"comicshelf/internal/logging"
	"comicshelf/internal/options"
)

// cronParser accepts standard five-field expressions and descriptors such as
// "@every 5m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// ScheduleEntry describes one scheduled initiator.
type ScheduleEntry struct {
	JobID string
	Spec  string
	Next  time.Time
}

// Scheduler fires initiators on cron ticks and bus events.
type Scheduler struct {
	cron       *cronlib.Cron
	initiators []*Initiator
	specs      map[cronlib.EntryID]ScheduleEntry
	logger     *slog.Logger
	ctx        context.Context
}

// NewScheduler registers every initiator that has a schedule. schedule
// returns the cron expression for a job id, or "" to leave the job
// event-driven only.
func NewScheduler(initiators []*Initiator, schedule func(jobID string) string, logger *slog.Logger) (*Scheduler, error) {
	logger = logging.NewComponentLogger(logger, "scheduler")
	cronLogger := cronLogAdapter{logger: logger}
	s := &Scheduler{
		cron: cronlib.New(
			cronlib.WithParser(cronParser),
			cronlib.WithLogger(cronLogger),
			cronlib.WithChain(cronlib.Recover(cronLogger), cronlib.SkipIfStillRunning(cronLogger)),
		),
		initiators: initiators,
		specs:      make(map[cronlib.EntryID]ScheduleEntry),
		logger:     logger,
		ctx:        context.Background(),
	}
	for _, initiator := range initiators {
		spec := schedule(initiator.JobID())
		if spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(spec, func() { initiator.Execute(s.ctx) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", initiator.JobID(), err)
		}
		s.specs[id] = ScheduleEntry{JobID: initiator.JobID(), Spec: spec}
	}
	return s, nil
}

// Subscribe binds initiators to their bus topics. The event trigger feature
// option is read on every event so the path can be switched off at runtime.
func (s *Scheduler) Subscribe(bus *events.Bus, opts ConfigurationStore) {
	for _, initiator := range s.initiators {
		for _, topic := range initiator.Topics() {
			bus.Subscribe(topic, func(ctx context.Context, event events.Event) {
				if opts != nil && !opts.FeatureEnabled(ctx, options.FeatureEventTriggers) {
					return
				}
				initiator.HandleEvent(ctx, event)
			})
		}
	}
}

// Run starts the cron loop and blocks until ctx is cancelled. Ticks in
// progress are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", logging.Int("entries", len(s.specs)))
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// RunAll invokes every initiator once on the calling goroutine.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, initiator := range s.initiators {
		initiator.Execute(ctx)
	}
}

// Entries lists scheduled initiators with their next fire time.
func (s *Scheduler) Entries() []ScheduleEntry {
	var out []ScheduleEntry
	for _, entry := range s.cron.Entries() {
		spec, ok := s.specs[entry.ID]
		if !ok {
			continue
		}
		spec.Next = entry.Next
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// cronLogAdapter routes robfig/cron logging through slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	attrs := append([]any{logging.Error(err)}, keysAndValues...)
	a.logger.Error("cron: "+msg, attrs...)
}
