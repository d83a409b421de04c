package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"comicshelf/internal/batch"
	"comicshelf/internal/config"
	"comicshelf/internal/events"
	"comicshelf/internal/logging"
	"comicshelf/internal/options"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
)

const decisionJobLaunch = "job_launch"

// ActiveRunRegistry reports live executions. Implementations answer from the
// running engine on every call.
type ActiveRunRegistry interface {
	HasActiveExecutions(jobID string) bool
}

// EligibilityProbes counts records that qualify for a job.
type EligibilityProbes interface {
	CountEligible(ctx context.Context, kind store.EligibilityKind) (int64, error)
}

// ConfigurationStore resolves runtime options.
type ConfigurationStore interface {
	Option(ctx context.Context, key string) (string, bool)
	OptionOr(ctx context.Context, key, def string) string
	IntOption(ctx context.Context, key string, def int) int
	FeatureEnabled(ctx context.Context, key string) bool
}

// JobRunner launches batch executions.
type JobRunner interface {
	Launch(ctx context.Context, jobID string, params batch.Params) (*batch.Execution, error)
}

// Requirement maps a prerequisite option onto a launch parameter.
type Requirement struct {
	Option string
	Param  string
}

// Definition describes when and how one job type launches.
type Definition struct {
	JobID string
	Kind  store.EligibilityKind
	// Prepare runs before the eligibility probe on every invocation, even
	// when nothing turns out to be eligible.
	Prepare func(ctx context.Context) error
	// Required options must be non-empty; their values become string
	// parameters.
	Required []Requirement
	// ErrorThreshold adds the resolved error threshold parameter.
	ErrorThreshold bool
	// Topics wake the initiator from the event bus.
	Topics []events.Topic
}

// Deps are the collaborators shared by every initiator.
type Deps struct {
	Probes   EligibilityProbes
	Registry ActiveRunRegistry
	Options  ConfigurationStore
	Runner   JobRunner
	Now      func() time.Time
}

// Initiator decides whether its job should launch right now.
type Initiator struct {
	def    Definition
	deps   Deps
	logger *slog.Logger
}

// NewInitiator constructs an initiator for def.
func NewInitiator(def Definition, deps Deps, logger *slog.Logger) *Initiator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Initiator{
		def:    def,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "initiator").With(logging.String(logging.FieldJobID, def.JobID)),
	}
}

// JobID returns the job this initiator launches.
func (i *Initiator) JobID() string { return i.def.JobID }

// Topics returns the bus topics that wake the initiator.
func (i *Initiator) Topics() []events.Topic { return i.def.Topics }

// HandleEvent is the bus entry point. It converges on Execute.
func (i *Initiator) HandleEvent(ctx context.Context, event events.Event) {
	i.logger.Debug("initiator triggered by event",
		logging.String("topic", string(event.Topic)),
		logging.Int64(logging.FieldComicID, event.ComicID),
	)
	i.Execute(ctx)
}

// Execute makes at most one launch attempt. It never returns an error; every
// short-circuit and launch failure is logged.
func (i *Initiator) Execute(ctx context.Context) {
	ctx = services.WithJobID(ctx, i.def.JobID)
	logger := logging.WithContext(ctx, i.logger)

	if i.def.Prepare != nil {
		if err := i.def.Prepare(ctx); err != nil {
			logging.WarnWithContext(logger, "job preparation failed", "job_prepare_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "eligibility may be understated until the next run"),
			)
		}
	}

	count, err := i.deps.Probes.CountEligible(ctx, i.def.Kind)
	if err != nil {
		logging.WarnWithContext(logger, "eligibility probe failed", "eligibility_probe_failed",
			logging.String("kind", string(i.def.Kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "job not launched this cycle"),
		)
		return
	}
	if count == 0 {
		i.skip(logger, "nothing_eligible")
		return
	}

	if i.deps.Registry.HasActiveExecutions(i.def.JobID) {
		i.skip(logger, "already_running")
		return
	}

	params, missing := i.buildParams(ctx)
	if missing != "" {
		i.skip(logger, "missing_option", logging.String("option", missing))
		return
	}

	exec, err := i.deps.Runner.Launch(ctx, i.def.JobID, params)
	if err != nil {
		i.reportLaunchFailure(logger, err)
		return
	}
	logger.Info("job launched",
		logging.Int64("eligible", count),
		logging.String(logging.FieldExecutionID, exec.ID),
	)
}

// buildParams returns the launch parameters, or the first required option
// that has no value.
func (i *Initiator) buildParams(ctx context.Context) (batch.Params, string) {
	var params batch.Params
	params.SetLong(batch.ParamStartedAt, i.deps.Now().UnixMilli())
	for _, req := range i.def.Required {
		value, ok := i.deps.Options.Option(ctx, req.Option)
		if !ok || strings.TrimSpace(value) == "" {
			return batch.Params{}, req.Option
		}
		params.SetString(req.Param, value)
	}
	if i.def.ErrorThreshold {
		params.SetLong(batch.ParamErrorThreshold, int64(ResolveErrorThreshold(ctx, i.deps.Options)))
	}
	return params, ""
}

func (i *Initiator) skip(logger *slog.Logger, reason string, attrs ...logging.Attr) {
	attrs = append(logging.DecisionAttrs(decisionJobLaunch, "skip", reason), attrs...)
	logger.Debug("job launch skipped", logging.Args(attrs...)...)
}

func (i *Initiator) reportLaunchFailure(logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, batch.ErrAlreadyRunning):
		logger.Debug("job launch rejected", logging.Error(err))
	case errors.Is(err, batch.ErrAlreadyComplete), errors.Is(err, batch.ErrRestart):
		logger.Info("job launch rejected", logging.Error(err))
	default:
		logging.WarnWithContext(logger, "job launch failed", "job_launch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next scheduled run will try again"),
			logging.String(logging.FieldImpact, "eligible records wait for the next run"),
		)
	}
}

// ResolveErrorThreshold returns the configured item failure cap, mapping the
// sentinel to config.DefaultErrorThreshold.
func ResolveErrorThreshold(ctx context.Context, opts ConfigurationStore) int {
	threshold := opts.IntOption(ctx, options.KeyErrorThreshold, config.DefaultErrorThreshold)
	if threshold == config.ErrorThresholdSentinel || threshold < 0 {
		return config.DefaultErrorThreshold
	}
	return threshold
}

// NewInitiators builds one initiator per definition.
func NewInitiators(defs []Definition, deps Deps, logger *slog.Logger) []*Initiator {
	initiators := make([]*Initiator, 0, len(defs))
	for _, def := range defs {
		initiators = append(initiators, NewInitiator(def, deps, logger))
	}
	return initiators
}
