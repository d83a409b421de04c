package batch

import "errors"

var (
	// ErrUnknownJob is returned when launching an unregistered job.
	ErrUnknownJob = errors.New("batch: unknown job")
	// ErrInvalidParameters is returned when parameters fail validation.
	ErrInvalidParameters = errors.New("batch: invalid job parameters")
	// ErrAlreadyRunning is returned when the job has a live execution.
	ErrAlreadyRunning = errors.New("batch: job execution already running")
	// ErrAlreadyComplete is returned when identical parameters already completed.
	ErrAlreadyComplete = errors.New("batch: job instance already complete")
	// ErrRestart is returned when a failed instance of a non-restartable job is relaunched.
	ErrRestart = errors.New("batch: job instance cannot be restarted")
	// ErrTooManyErrors aborts a job whose item failures exceed its error threshold.
	ErrTooManyErrors = errors.New("batch: error threshold exceeded")
	// ErrStopped is returned by Launch after Stop.
	ErrStopped = errors.New("batch: engine stopped")
	// ErrDuplicateJob is returned when registering a job identifier twice.
	ErrDuplicateJob = errors.New("batch: job already registered")
)
