package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// JobNotFoundError is surfaced to the client facade for an unknown job_id.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

// NewJobNotFound wraps a JobNotFoundError with stack context.
func NewJobNotFound(jobID string) error {
	return errors.WithStack(&JobNotFoundError{JobID: jobID})
}

// IsJobNotFound reports whether err is (or wraps) a JobNotFoundError.
func IsJobNotFound(err error) bool {
	var target *JobNotFoundError
	return errors.As(err, &target)
}

// TimeoutError is returned only by wait/wait_for_completion; it never
// mutates storage.
type TimeoutError struct {
	JobID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for job %s", e.JobID)
}

// NewTimeout builds a TimeoutError.
func NewTimeout(jobID string) error {
	return &TimeoutError{JobID: jobID}
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// UserCancelledError is the sentinel raised by a handler's
// ctx.CheckForCancel call. The scheduler's update loop rewrites the
// ensuing JOB_FAILED into a mark_job_as_canceled instead.
type UserCancelledError struct{}

func (e *UserCancelledError) Error() string { return "job was cancelled" }

// ErrUserCancelled is the shared sentinel instance.
var ErrUserCancelled = &UserCancelledError{}

// IsUserCancelled reports whether err is the cancellation sentinel.
func IsUserCancelled(err error) bool {
	var target *UserCancelledError
	return errors.As(err, &target)
}

// WorkerDiedError is a synthetic failure raised when the execution
// substrate (a subprocess, in PROCESS worker mode) terminates abnormally.
type WorkerDiedError struct {
	Reason string
}

func (e *WorkerDiedError) Error() string {
	return fmt.Sprintf("worker died: %s", e.Reason)
}

// NewWorkerDied builds a WorkerDiedError.
func NewWorkerDied(reason string) error {
	return &WorkerDiedError{Reason: reason}
}

// ProgrammerErrorf builds an engine-internal invariant violation. Callers
// must panic with it, never swallow it — an unknown message type or an
// illegal state transition is a bug in the engine, not a user error.
func ProgrammerErrorf(format string, args ...any) error {
	return errors.Errorf("programmer error: "+format, args...)
}
