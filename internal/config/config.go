package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	ImageCacheDir string `toml:"image_cache_dir"`
}

// Library contains the defaults for library organization. Values stored in the
// database options table take precedence at runtime.
type Library struct {
	TargetDirectory    string   `toml:"target_directory"`
	RenamingRule       string   `toml:"renaming_rule"`
	DeleteRemovedFiles bool     `toml:"delete_removed_files"`
	Extensions         []string `toml:"extensions"`
}

// Batch contains configuration for scheduled batch jobs.
type Batch struct {
	// ErrorThreshold caps per-item failures before a job aborts. Zero selects
	// DefaultErrorThreshold.
	ErrorThreshold int               `toml:"error_threshold"`
	ChunkSize      int               `toml:"chunk_size"`
	Schedules      map[string]string `toml:"schedules"`
	EventTriggers  bool              `toml:"event_triggers"`
}

// Tasks contains configuration for the task manager and queue monitor.
type Tasks struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"` // milliseconds
	ClaimBatchSize    int `toml:"claim_batch_size"`
	RetentionHours    int `toml:"retention_hours"`
}

// Notifications contains configuration for ntfy and AMQP publishing.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	MinInterval    int    `toml:"min_interval"`
	StateChanges   bool   `toml:"state_changes"`
	JobEvents      bool   `toml:"job_events"`
	AMQPURL        string `toml:"amqp_url"`
	AMQPExchange   string `toml:"amqp_exchange"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for comicshelf.
//
// Configuration sections by subsystem:
//   - Paths: database, logs and image cache locations
//   - Library: default target directory and renaming rule
//   - Batch: job schedules, chunk size and error threshold
//   - Tasks: worker pool and queue polling
//   - Notifications: ntfy and AMQP publishing
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Library       Library       `toml:"library"`
	Batch         Batch         `toml:"batch"`
	Tasks         Tasks         `toml:"tasks"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("comicshelf.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The library target directory is created on a best-effort basis so the daemon
// can run while external storage is offline.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ImageCacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Library.TargetDirectory) != "" {
		_ = os.MkdirAll(c.Library.TargetDirectory, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "comicshelf.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "comicshelf.lock")
}

// PIDPath returns the daemon PID file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "comicshelf.pid")
}

// ResolvedErrorThreshold returns the configured job error threshold, falling
// back to DefaultErrorThreshold when the configured value is the sentinel.
func (c *Config) ResolvedErrorThreshold() int {
	if c.Batch.ErrorThreshold == ErrorThresholdSentinel {
		return DefaultErrorThreshold
	}
	return c.Batch.ErrorThreshold
}

// Schedule returns the cron expression configured for jobID, or "" when the
// job has no schedule.
func (c *Config) Schedule(jobID string) string {
	if c.Batch.Schedules == nil {
		return ""
	}
	return strings.TrimSpace(c.Batch.Schedules[jobID])
}

// SupportsExtension reports whether a file name carries one of the configured
// comic archive extensions.
func (c *Config) SupportsExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, candidate := range c.Library.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
