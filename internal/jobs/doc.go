// Package jobs decides when batch jobs run and implements what they do.
//
// Each job type has an Initiator built from a Definition. An initiator is
// invoked by a cron tick or by an event bus topic; both paths run the same
// sequence: optional preparation, eligibility probe, active-run check,
// prerequisite options, parameter assembly, and a single launch attempt
// whose failures are logged and swallowed. Initiators run on the caller's
// goroutine and never retry.
//
// Bodies holds the job implementations registered with the batch engine.
// They page through eligible records with batch.ProcessChunks and drive
// entity state exclusively through the lifecycle handlers.
//
// Scheduler binds initiators to cron schedules (robfig/cron) and bus topics.
package jobs
