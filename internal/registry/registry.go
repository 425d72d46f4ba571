// Package registry is the process-wide, total mapping from handler id to
// handler implementation that the Design Notes recommend in place of
// pickling arbitrary closures.
package registry

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ProgressReporter is the subset of the execution context a handler needs
// to report progress. Implemented by workerpool.ThreadContext and by the
// worker pool's subprocess-side context.
type ProgressReporter interface {
	UpdateProgress(progress, total float64, stage string)
	CheckForCancel() error
}

// Handler is a registered unit of work. ctx carries the progress/cancel
// callbacks a job opted into; args/kwargs are the job's JSON-encoded
// parameters. The returned value is JSON-marshaled into Job.Result.
type Handler func(ctx ProgressReporter, args, kwargs json.RawMessage) (any, error)

var (
	mu       sync.RWMutex
	handlers = make(map[string]Handler)
)

// Register adds a handler under id, populated at startup (typically from
// an init() in the package that owns the handler). Registering the same id
// twice is a programmer error and panics, matching the "total mapping"
// guarantee: there must never be ambiguity about which handler an id
// resolves to.
func Register(id string, h Handler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := handlers[id]; exists {
		panic(fmt.Sprintf("registry: handler %q already registered", id))
	}
	handlers[id] = h
}

// Lookup resolves id to its handler. ok is false if id was never
// registered — the caller (the worker pool) turns that into a JOB_FAILED
// with a WorkerDied-style synthetic exception rather than crashing.
func Lookup(id string) (Handler, bool) {
	mu.RLock()
	defer mu.RUnlock()
	h, ok := handlers[id]
	return h, ok
}

// Reset clears the registry. Exists for test isolation only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	handlers = make(map[string]Handler)
}
