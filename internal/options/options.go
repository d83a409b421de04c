package options

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"comicshelf/internal/config"
	"comicshelf/internal/logging"
)

// Well-known option keys.
const (
	KeyTargetDirectory    = "library.target_directory"
	KeyRenamingRule       = "library.renaming_rule"
	KeyDeleteRemovedFiles = "library.delete_removed_files"
	KeyErrorThreshold     = "batch.error_threshold"
	KeyChunkSize          = "batch.chunk_size"

	// FeatureSkipCachePrepare disables the cover-page preparation side
	// effect that runs ahead of the image cache job.
	FeatureSkipCachePrepare = "feature.skip_cache_prepare"
	// FeatureEventTriggers enables the event bus trigger path for jobs.
	FeatureEventTriggers = "feature.event_triggers"
)

// Backend is the persistence surface the option store reads and writes.
type Backend interface {
	GetOption(ctx context.Context, name string) (string, bool, error)
	SetOption(ctx context.Context, name, value string) error
	DeleteOption(ctx context.Context, name string) (bool, error)
	ListOptions(ctx context.Context) (map[string]string, error)
}

// Store resolves option values from the database first and the configuration
// defaults second.
type Store struct {
	backend  Backend
	defaults map[string]string
	logger   *slog.Logger
}

// New constructs an option store seeded with defaults from cfg.
func New(backend Backend, cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		backend:  backend,
		defaults: Defaults(cfg),
		logger:   logging.NewComponentLogger(logger, "options"),
	}
}

// Defaults derives the configuration-file defaults for every well-known key.
func Defaults(cfg *config.Config) map[string]string {
	defaults := map[string]string{}
	if cfg == nil {
		return defaults
	}
	if dir := strings.TrimSpace(cfg.Library.TargetDirectory); dir != "" {
		defaults[KeyTargetDirectory] = dir
	}
	if rule := strings.TrimSpace(cfg.Library.RenamingRule); rule != "" {
		defaults[KeyRenamingRule] = rule
	}
	defaults[KeyDeleteRemovedFiles] = strconv.FormatBool(cfg.Library.DeleteRemovedFiles)
	defaults[KeyErrorThreshold] = strconv.Itoa(cfg.Batch.ErrorThreshold)
	defaults[KeyChunkSize] = strconv.Itoa(cfg.Batch.ChunkSize)
	defaults[FeatureEventTriggers] = strconv.FormatBool(cfg.Batch.EventTriggers)
	return defaults
}

// Option returns the value for key and whether a non-empty value exists.
// Database read failures are logged and treated as absent so callers fall
// back to the configured default.
func (s *Store) Option(ctx context.Context, key string) (string, bool) {
	if s == nil {
		return "", false
	}
	if s.backend != nil {
		value, ok, err := s.backend.GetOption(ctx, key)
		if err != nil {
			logging.WarnWithContext(s.logger, "option lookup failed; using configured default", "option_lookup_failed",
				logging.String("option", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check database health with comicshelf status"),
				logging.String(logging.FieldImpact, "configuration file value used for this lookup"),
			)
		} else if ok && strings.TrimSpace(value) != "" {
			return value, true
		}
	}
	value, ok := s.defaults[key]
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// OptionOr returns the value for key or def when none is set.
func (s *Store) OptionOr(ctx context.Context, key, def string) string {
	if value, ok := s.Option(ctx, key); ok {
		return value
	}
	return def
}

// IntOption parses the value for key as an integer, returning def when the
// value is absent or malformed.
func (s *Store) IntOption(ctx context.Context, key string, def int) int {
	value, ok := s.Option(ctx, key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

// FeatureEnabled reports whether key holds a truthy value.
func (s *Store) FeatureEnabled(ctx context.Context, key string) bool {
	value, ok := s.Option(ctx, key)
	if !ok {
		return false
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && enabled
}

// Set stores a database override for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.backend.SetOption(ctx, strings.TrimSpace(key), value)
}

// Delete removes the database override for key, reverting it to the default.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	return s.backend.DeleteOption(ctx, strings.TrimSpace(key))
}

// Entry is one resolved option.
type Entry struct {
	Key    string
	Value  string
	Source string // "database" or "config"
}

// All returns every option known either to the database or the defaults,
// sorted by key.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	stored, err := s.backend.ListOptions(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]Entry, len(stored)+len(s.defaults))
	for key, value := range s.defaults {
		merged[key] = Entry{Key: key, Value: value, Source: "config"}
	}
	for key, value := range stored {
		merged[key] = Entry{Key: key, Value: value, Source: "database"}
	}
	entries := make([]Entry, 0, len(merged))
	for _, entry := range merged {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
