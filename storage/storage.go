// Package storage holds the authoritative state of every job: the durable
// (bbolt-backed) and in-memory backends share the Backend contract below.
package storage

import (
	"encoding/json"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
)

// Memory is the sentinel storage_path selecting the in-memory backend,
// equivalent to the original's MEMORY constant.
const Memory = ""

// Backend is the storage contract described in the scheduler design: a
// persistent job_id -> Job map with condition-variable-like wakeups on
// state change. All mutations are serialized per job_id and atomic;
// readers never observe an intermediate state.
type Backend interface {
	// ScheduleJob persists job with state SCHEDULED, assigning an id if
	// job.ID is empty, and returns the job_id.
	ScheduleJob(job types.Job) (string, error)

	// GetJob returns a snapshot of the job, or a JobNotFoundError.
	GetJob(jobID string) (types.Job, error)

	// GetAllJobs returns a snapshot of every job in any state.
	GetAllJobs() ([]types.Job, error)

	// GetNextScheduledJob returns the oldest SCHEDULED job by schedule
	// time (ties broken by lexicographic job_id), or ok=false if none.
	GetNextScheduledJob() (types.Job, bool, error)

	MarkJobAsQueued(jobID string) error
	MarkJobAsRunning(jobID string) error
	MarkJobAsCanceling(jobID string) error
	MarkJobAsCanceled(jobID string) error
	CompleteJob(jobID string, result json.RawMessage) error
	MarkJobAsFailed(jobID string, exception, traceback string) error
	UpdateJobProgress(jobID string, progress, total float64, stage string) error

	// WaitForJobUpdate blocks until any attribute of jobID changes, or
	// returns a TimeoutError once timeout elapses. timeout <= 0 means
	// wait indefinitely. Multiple updates that happen between two calls
	// are coalesced into a single wake carrying the latest state.
	WaitForJobUpdate(jobID string, timeout time.Duration) (types.Job, error)

	// Clear removes every job in a terminal state (COMPLETED, FAILED,
	// CANCELED). With force=true it removes every job regardless of
	// state.
	Clear(force bool) error

	// Close releases any resources (file handles, goroutines) held by
	// the backend.
	Close() error
}
