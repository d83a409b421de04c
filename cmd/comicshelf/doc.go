// Command comicshelf runs the library daemon and offers maintenance commands
// against its database: importing archives, inspecting the task queue and job
// history, queueing comic operations, and editing stored options.
//
// Commands other than daemon never talk to a running process. They read and
// write the same SQLite database, and queued tasks are picked up by the
// daemon's queue monitor.
package main
