// Package daemon coordinates the long-running comicshelf process.
//
// It holds the single-instance flock, recovers state a previous process left
// behind (abandoned executions, claimed but unfinished tasks), and runs the
// event bus, task manager, queue monitor and job scheduler as one errgroup.
// Individual jobs and tasks live in their own packages; the daemon only owns
// startup, shutdown, and the status snapshot.
package daemon
