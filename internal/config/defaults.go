package config

const (
	defaultConfigPath         = "~/.config/comicshelf/config.toml"
	defaultDataDir            = "~/.local/share/comicshelf"
	defaultLogDir             = "~/.local/share/comicshelf/logs"
	defaultImageCacheDir      = "~/.cache/comicshelf/images"
	defaultLogRetentionDays   = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultRenamingRule       = "$PUBLISHER/$SERIES/$VOLUME/$SERIES v$VOLUME #$ISSUE ($COVERDATE)"
	defaultChunkSize          = 25
	defaultTaskWorkers        = 4
	defaultQueuePollInterval  = 1000
	defaultClaimBatchSize     = 100
	defaultTaskRetentionHours = 72
	defaultRequestTimeout     = 10
	defaultNotifyMinInterval  = 2
	defaultAMQPExchange       = "comicshelf.events"
)

const (
	// DefaultErrorThreshold is the per-job item failure cap applied when the
	// configured threshold is ErrorThresholdSentinel.
	DefaultErrorThreshold = 10
	// ErrorThresholdSentinel marks the error threshold as "use the default".
	ErrorThresholdSentinel = 0
)

// Default job schedules keyed by batch job identifier.
func defaultSchedules() map[string]string {
	return map[string]string{
		"process_comics":            "@every 1m",
		"load_page_hashes":          "@every 5m",
		"mark_blocked_pages":        "@every 10m",
		"add_covers_to_image_cache": "@every 5m",
		"update_metadata":           "@every 2m",
		"recreate_comics":           "@every 2m",
		"purge_library":             "@every 15m",
		"organize_library":          "@every 5m",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			ImageCacheDir: defaultImageCacheDir,
		},
		Library: Library{
			RenamingRule: defaultRenamingRule,
			Extensions:   []string{"cbz"},
		},
		Batch: Batch{
			ErrorThreshold: ErrorThresholdSentinel,
			ChunkSize:      defaultChunkSize,
			Schedules:      defaultSchedules(),
			EventTriggers:  true,
		},
		Tasks: Tasks{
			Workers:           defaultTaskWorkers,
			QueuePollInterval: defaultQueuePollInterval,
			ClaimBatchSize:    defaultClaimBatchSize,
			RetentionHours:    defaultTaskRetentionHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			MinInterval:    defaultNotifyMinInterval,
			StateChanges:   true,
			JobEvents:      true,
			AMQPExchange:   defaultAMQPExchange,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
