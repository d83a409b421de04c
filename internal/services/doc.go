// Package services defines shared utilities consumed by tasks, batch jobs and
// the lifecycle handlers.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, job IDs, execution IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify for the
//     failure labels persisted on task and execution records.
//
// Use these helpers when wiring new tasks or jobs so operational behaviour
// (error handling, observability) stays uniform across the daemon.
package services
