// Package batch is the job execution engine behind the scheduled library
// maintenance jobs.
//
// Jobs are registered once at startup and launched by identifier with a
// Params bag. Launch refuses a second concurrent execution of the same job,
// an identical-parameter relaunch of a completed execution, and a relaunch
// of a failed execution for jobs that are not restartable. Every execution is
// recorded in the job_executions table; the set of running executions lives
// in memory and is the single source of truth for HasActiveExecutions.
package batch
