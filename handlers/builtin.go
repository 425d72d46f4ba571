// Package handlers registers the demo job functions exercised by
// cmd/jobenginectl: the testable scenarios spec.md §8 describes, turned into registered handlers since
// the engine only ever dispatches by handler id.
package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/registry"
)

func init() {
	registry.Register("builtin_identity", identity)
	registry.Register("builtin_divide", divide)
	registry.Register("builtin_count_to_ten", countToTen)
	registry.Register("builtin_cancellable_loop", cancellableLoop)
	registry.Register("builtin_sleep", sleep)
}

// identityArgs is the single positional value builtin_identity echoes back.
type identityArgs struct {
	Value json.RawMessage `json:"value"`
}

// identity returns its argument unchanged. Schedule(builtin_identity(9))
// completing with result == 9 is the happy-path scenario.
func identity(_ registry.ProgressReporter, args, _ json.RawMessage) (any, error) {
	var a identityArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("builtin_identity: decode args: %w", err)
		}
	}
	var v any
	if len(a.Value) > 0 {
		if err := json.Unmarshal(a.Value, &v); err != nil {
			return nil, fmt.Errorf("builtin_identity: decode value: %w", err)
		}
	}
	return v, nil
}

// divideArgs are the dividend/divisor for builtin_divide.
type divideArgs struct {
	Dividend float64 `json:"dividend"`
	Divisor  float64 `json:"divisor"`
}

// divide raises a genuine user error on divide-by-zero, the user-exception
// scenario: FAILED with an exception mentioning division by zero.
func divide(_ registry.ProgressReporter, args, _ json.RawMessage) (any, error) {
	var a divideArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("builtin_divide: decode args: %w", err)
	}
	if a.Divisor == 0 {
		return nil, fmt.Errorf("builtin_divide: division by zero")
	}
	return a.Dividend / a.Divisor, nil
}

// countToTen reports progress i/10 for i in 0..10 with a short pause
// between steps, the progress-reporting scenario.
func countToTen(ctx registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
	const total = 10
	for i := 0; i <= total; i++ {
		ctx.UpdateProgress(float64(i), total, "")
		time.Sleep(50 * time.Millisecond)
	}
	return "done", nil
}

// cancellableLoop polls CheckForCancel every 50ms, the cancellation-honored
// scenario: cancel(job_id) after 200ms should terminate it as CANCELED well
// within 500ms.
func cancellableLoop(ctx registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
	for i := 0; i < 1000; i++ {
		if err := ctx.CheckForCancel(); err != nil {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
	return "finished", nil
}

// sleep blocks for one second regardless of cancellation, the
// cancellation-of-non-cancellable scenario: cancel(job_id) leaves it
// CANCELING until it completes normally.
func sleep(_ registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
	time.Sleep(time.Second)
	return "slept", nil
}
