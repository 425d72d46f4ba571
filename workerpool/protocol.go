package workerpool

import "encoding/json"

// reexecEnvVar, set in a child process's environment, tells Init that this
// invocation of the binary is a re-executed worker rather than a normal
// program start. The handler id itself travels over stdin alongside the
// job's arguments, not through the environment, so there is exactly one
// source of truth for "which handler to run".
const reexecEnvVar = "JOBENGINE_REEXEC_WORKER"

const (
	linePrefixProgress = "PROGRESS "
	linePrefixResult   = "RESULT "
	linePrefixError    = "ERROR "
	lineCancel         = "CANCEL"
)

// reexecInput is the single JSON line written to the child's stdin before
// the parent keeps the pipe open for a possible CANCEL line.
type reexecInput struct {
	Func          string          `json:"func"`
	Args          json.RawMessage `json:"args,omitempty"`
	Kwargs        json.RawMessage `json:"kwargs,omitempty"`
	TrackProgress bool            `json:"track_progress"`
	Cancellable   bool            `json:"cancellable"`
}

// reexecProgress is the payload of a PROGRESS line on the child's stdout.
type reexecProgress struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total"`
	Stage    string  `json:"stage,omitempty"`
}

// reexecError is the payload of an ERROR line on the child's stdout.
type reexecError struct {
	Exception string `json:"exception"`
	Traceback string `json:"traceback,omitempty"`
}
