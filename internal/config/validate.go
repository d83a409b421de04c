package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.ErrorThreshold < 0 {
		return errors.New("batch.error_threshold must be zero (default) or positive")
	}
	return nil
}

func (c *Config) validateTasks() error {
	if c.Tasks.RetentionHours < 0 {
		return errors.New("tasks.retention_hours must be zero (keep forever) or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.MinInterval < 0 {
		return errors.New("notifications.min_interval must be zero or positive")
	}
	url := c.Notifications.AMQPURL
	if url != "" && !strings.HasPrefix(url, "amqp://") && !strings.HasPrefix(url, "amqps://") {
		return fmt.Errorf("notifications.amqp_url must use amqp:// or amqps://, got %q", url)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}
