// Package types holds the data model shared by every engine component:
// jobs, their state machine, and the messages that travel over mailboxes.
package types

import (
	"encoding/json"
	"time"
)

// State is a job's position in the state machine described in the scheduler
// design. Transitions outside the graph below are a ProgrammerError.
type State string

const (
	Scheduled State = "SCHEDULED"
	Queued    State = "QUEUED"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Canceling State = "CANCELING"
	Canceled  State = "CANCELED"
)

// Terminal reports whether a state is absorbing.
func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, Canceled:
		return true
	default:
		return false
	}
}

// transitions enumerates the legal edges of the job state machine.
var transitions = map[State]map[State]bool{
	Scheduled: {Queued: true, Canceling: true},
	// Queued->Failed exists only for crash recovery: a job dispatched to a
	// worker mailbox whose owning process died before confirming
	// JOB_STARTED is reported failed with a synthetic WorkerDied error
	// rather than left stuck in QUEUED forever.
	Queued: {Running: true, Canceling: true, Failed: true},
	Running: {Completed: true, Failed: true, Canceling: true},
	// Canceling->Completed covers a non-cancellable (or cancel-ignoring)
	// job that was asked to cancel but ran to natural completion anyway;
	// cancellation is cooperative, never forced, so the handler's own
	// outcome always wins.
	Canceling: {Canceled: true, Failed: true, Completed: true},
	Completed: {},
	Failed:    {},
	Canceled:  {},
}

// CanTransition reports whether moving from 'from' to 'to' is legal.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Job is the central entity persisted by the storage backend. Func is a
// handler id looked up in internal/registry rather than a serialized
// closure; Args/Kwargs are the JSON-encoded parameters passed to it.
type Job struct {
	ID     string          `json:"id"`
	Func   string          `json:"func"`
	Args   json.RawMessage `json:"args,omitempty"`
	Kwargs json.RawMessage `json:"kwargs,omitempty"`
	State  State           `json:"state"`

	Progress      float64 `json:"progress"`
	TotalProgress float64 `json:"total_progress"`
	Stage         string  `json:"stage,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`

	Exception string `json:"exception,omitempty"`
	Traceback string `json:"traceback,omitempty"`

	TrackProgress bool `json:"track_progress"`
	Cancellable   bool `json:"cancellable"`

	ExtraMetadata json.RawMessage `json:"extra_metadata,omitempty"`

	ScheduledAt time.Time `json:"scheduled_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a defensive value copy suitable for handing back to
// callers across goroutine boundaries (Go has no GIL to make sharing the
// live pointer safe the way the Python original did).
func (j Job) Clone() Job {
	clone := j
	clone.Args = append(json.RawMessage(nil), j.Args...)
	clone.Kwargs = append(json.RawMessage(nil), j.Kwargs...)
	clone.Result = append(json.RawMessage(nil), j.Result...)
	clone.ExtraMetadata = append(json.RawMessage(nil), j.ExtraMetadata...)
	return clone
}

// ClampProgress clamps p into [0, total] per the storage invariant that a
// progress report never fails a job, it only gets clamped at write time.
func ClampProgress(p, total float64) float64 {
	if total > 0 && p > total {
		return total
	}
	if p < 0 {
		return 0
	}
	return p
}
