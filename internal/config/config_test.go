package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"comicshelf/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "comicshelf")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "comicshelf.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Tasks.QueuePollInterval != 1000 {
		t.Fatalf("expected 1s poll interval, got %d", cfg.Tasks.QueuePollInterval)
	}
	if cfg.Schedule("process_comics") != "@every 1m" {
		t.Fatalf("unexpected process_comics schedule %q", cfg.Schedule("process_comics"))
	}
	if cfg.Library.TargetDirectory != "" {
		t.Fatalf("expected empty target directory by default, got %q", cfg.Library.TargetDirectory)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	type pathsSection struct {
		DataDir string `toml:"data_dir"`
		LogDir  string `toml:"log_dir"`
	}
	type librarySection struct {
		TargetDirectory string   `toml:"target_directory"`
		Extensions      []string `toml:"extensions"`
	}
	type batchSection struct {
		ErrorThreshold int               `toml:"error_threshold"`
		Schedules      map[string]string `toml:"schedules"`
	}
	type tasksSection struct {
		Workers int `toml:"workers"`
	}
	payload := struct {
		Paths   pathsSection   `toml:"paths"`
		Library librarySection `toml:"library"`
		Batch   batchSection   `toml:"batch"`
		Tasks   tasksSection   `toml:"tasks"`
	}{
		Paths:   pathsSection{DataDir: "~/shelf", LogDir: "~/shelf/logs"},
		Library: librarySection{TargetDirectory: "~/comics", Extensions: []string{".CBZ", "cbr", "cbz"}},
		Batch:   batchSection{ErrorThreshold: 3, Schedules: map[string]string{"purge_library": "@hourly"}},
		Tasks:   tasksSection{Workers: 2},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q to be used, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "shelf") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Library.TargetDirectory != filepath.Join(tempHome, "comics") {
		t.Fatalf("unexpected target directory %q", cfg.Library.TargetDirectory)
	}
	if got := strings.Join(cfg.Library.Extensions, ","); got != "cbz,cbr" {
		t.Fatalf("unexpected extensions %q", got)
	}
	if !cfg.SupportsExtension("Saga 001.CBR") || cfg.SupportsExtension("notes.txt") {
		t.Fatal("extension matching does not follow configured list")
	}
	if cfg.Schedule("purge_library") != "@hourly" {
		t.Fatalf("expected override schedule, got %q", cfg.Schedule("purge_library"))
	}
	if cfg.Schedule("process_comics") == "" {
		t.Fatal("expected default schedules to survive partial override")
	}
	if cfg.ResolvedErrorThreshold() != 3 {
		t.Fatalf("expected configured threshold, got %d", cfg.ResolvedErrorThreshold())
	}
	if cfg.Tasks.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Tasks.Workers)
	}
}

func TestResolvedErrorThresholdSentinel(t *testing.T) {
	cfg := config.Default()
	if got := cfg.ResolvedErrorThreshold(); got != config.DefaultErrorThreshold {
		t.Fatalf("expected default threshold %d, got %d", config.DefaultErrorThreshold, got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative threshold", func(c *config.Config) { c.Batch.ErrorThreshold = -1 }, "batch.error_threshold"},
		{"amqp scheme", func(c *config.Config) { c.Notifications.AMQPURL = "http://broker" }, "notifications.amqp_url"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"data dir", func(c *config.Config) { c.Paths.DataDir = "" }, "paths.data_dir"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Notifications.AMQPExchange != "comicshelf.events" {
		t.Fatalf("unexpected exchange %q", cfg.Notifications.AMQPExchange)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ImageCacheDir = filepath.Join(base, "cache")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.ImageCacheDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
