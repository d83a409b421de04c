package testsupport

import (
	"path/filepath"
	"testing"

	"comicshelf/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ImageCacheDir = filepath.Join(base, "cache")
	cfgVal.Tasks.QueuePollInterval = 10
	cfgVal.Notifications.MinInterval = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLibrary sets the organization target directory (relative to the test
// base directory) and renaming rule on the test config.
func WithLibrary(targetSubdir, renamingRule string) ConfigOption {
	return func(b *configBuilder) {
		if targetSubdir != "" {
			b.cfg.Library.TargetDirectory = filepath.Join(b.baseDir, targetSubdir)
		}
		b.cfg.Library.RenamingRule = renamingRule
	}
}

// WithWorkers overrides the task manager worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tasks.Workers = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
