// Package logging assembles structured slog loggers and formatting helpers used
// across comicshelf.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so tasks and batch jobs
// automatically tag log lines with task IDs, job IDs, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot fail.
package logging
