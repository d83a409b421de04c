package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeBatch()
	c.normalizeTasks()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ImageCacheDir) == "" {
		c.Paths.ImageCacheDir = defaultImageCacheDir
	}
	if c.Paths.ImageCacheDir, err = expandPath(c.Paths.ImageCacheDir); err != nil {
		return fmt.Errorf("paths.image_cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	var err error
	if strings.TrimSpace(c.Library.TargetDirectory) != "" {
		if c.Library.TargetDirectory, err = expandPath(c.Library.TargetDirectory); err != nil {
			return fmt.Errorf("library.target_directory: %w", err)
		}
	}
	c.Library.RenamingRule = strings.TrimSpace(c.Library.RenamingRule)
	exts := make([]string, 0, len(c.Library.Extensions))
	seen := make(map[string]struct{}, len(c.Library.Extensions))
	for _, ext := range c.Library.Extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{"cbz"}
	}
	c.Library.Extensions = exts
	return nil
}

func (c *Config) normalizeBatch() {
	if c.Batch.ChunkSize <= 0 {
		c.Batch.ChunkSize = defaultChunkSize
	}
	schedules := defaultSchedules()
	for jobID, expr := range c.Batch.Schedules {
		jobID = strings.TrimSpace(jobID)
		if jobID == "" {
			continue
		}
		schedules[jobID] = strings.TrimSpace(expr)
	}
	c.Batch.Schedules = schedules
}

func (c *Config) normalizeTasks() {
	if c.Tasks.Workers <= 0 {
		c.Tasks.Workers = defaultTaskWorkers
	}
	if c.Tasks.QueuePollInterval <= 0 {
		c.Tasks.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Tasks.ClaimBatchSize <= 0 {
		c.Tasks.ClaimBatchSize = defaultClaimBatchSize
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.AMQPURL = strings.TrimSpace(c.Notifications.AMQPURL)
	c.Notifications.AMQPExchange = strings.TrimSpace(c.Notifications.AMQPExchange)
	if c.Notifications.AMQPExchange == "" {
		c.Notifications.AMQPExchange = defaultAMQPExchange
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
