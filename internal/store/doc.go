// Package store persists the comic library, the task queue, runtime options,
// and batch job executions in a single SQLite database.
//
// Open applies embedded migrations and configures WAL mode. Writes that hit
// SQLITE_BUSY are retried with bounded backoff. Lookups by identifier return
// nil without error when the record does not exist.
//
// Lifecycle state columns on comics and pages are written only through
// SaveComic and SavePage, which the lifecycle handlers call after applying a
// transition.
package store
