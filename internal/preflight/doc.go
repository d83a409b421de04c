// Package preflight provides readiness checks for the filesystem paths and
// notification transports comicshelf depends on.
//
// The daemon runs RunAll at startup and logs failures as warnings; the CLI
// "comicshelf status" command renders the same results as a table.
package preflight
