// Package tasks runs small, individually queued units of work.
//
// Producers persist encoded tasks (a type tag plus string properties) in the
// store. The Monitor drains that queue, turns each record back into a Task
// through the Registry, and hands it to the Manager, which executes tasks on
// a fixed worker pool. The Monitor itself is a perpetual task that runs on the
// Manager's control lane and resubmits itself after every cycle.
package tasks
