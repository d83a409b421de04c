// Package logs reads daemon log files for the CLI.
//
// Tail returns the last lines of a file together with the byte offset the
// next read should resume from. Follow polls from that offset and emits new
// lines until its context ends, reopening the file when the daemon rotates
// to a new run log.
package logs
