package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"comicshelf/internal/config"
	"comicshelf/internal/daemon"
	"comicshelf/internal/logging"
	"comicshelf/internal/notifications"
	"comicshelf/internal/options"
	"comicshelf/internal/preflight"
	"comicshelf/internal/services"
	"comicshelf/internal/store"
	"comicshelf/internal/textutil"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Diagnostic tees a debug-level JSON log into the debug subdirectory.
	Diagnostic bool
}

// Run starts the comicshelf daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if running, pid, err := daemon.ProcessInfo(cfg); err == nil && running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, pid)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("comicshelf-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            textutil.FirstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Color:            isatty.IsTerminal(os.Stdout.Fd()),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Diagnostic {
		debugLogPath := filepath.Join(cfg.Paths.LogDir, "debug", fmt.Sprintf("comicshelf-%s.log", runID))
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			logger.Info("diagnostic mode enabled",
				logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
				logging.String("debug_log_path", debugLogPath),
			)
		}
	}
	sessionCtx := services.WithRequestID(signalCtx, uuid.NewString())
	logger = logging.WithContext(sessionCtx, logger)

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update comicshelf.log link: %v\n", err)
	}
	if removed := logging.PruneLogs(logger, cfg.Paths.LogDir, "comicshelf-*.log", cfg.Logging.RetentionDays, logPath); removed > 0 {
		logger.Info("pruned old daemon logs", logging.Int("removed", removed))
	}

	pidPath := cfg.PIDPath()
	if err := daemon.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	notifier, closeNotifier, err := notifications.NewFromConfig(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "notifications degraded", "notifier_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.amqp_url and broker availability"),
			logging.String(logging.FieldImpact, "state changes are only published to ntfy"),
		)
		notifier = notifications.NewService(cfg)
	}
	if closeNotifier != nil {
		defer func() { _ = closeNotifier() }()
	}

	rt, err := Assemble(cfg, st, logger, notifier)
	if err != nil {
		return err
	}
	logPreflight(sessionCtx, logger, cfg, rt.Options)

	d, err := daemon.New(cfg, st, logger, rt.Components)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited with error", logging.Error(err))
		return err
	}
	logger.Info("comicshelf daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, opts *options.Store) {
	target := opts.OptionOr(ctx, options.KeyTargetDirectory, cfg.Library.TargetDirectory)
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, target)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run comicshelf status for the full report"),
			logging.String(logging.FieldImpact, "jobs touching this resource will fail"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "comicshelf.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
