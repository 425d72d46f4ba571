// Package metrics exposes job-engine counters via expvar, generalized
// from the email-domain singleton metrics collector (jobs_scheduled/
// completed/failed counters already existed there; everything
// email-specific is dropped).
package metrics

import (
	"expvar"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
)

// Registry holds the engine's expvar counters. Unlike the teacher's
// package-level singleton, a Registry is constructed per Engine so tests
// and multiple engines in one process don't collide on expvar's global
// namespace.
type Registry struct {
	JobsScheduled *expvar.Int
	JobsCompleted *expvar.Int
	JobsFailed    *expvar.Int
	JobsCanceled  *expvar.Int
	FreeSlots     *expvar.Int
	startTime     time.Time
}

var registryCount int64

// NewRegistry builds a Registry with a process-unique expvar namespace
// prefix, so building several in one test binary is safe.
func NewRegistry() *Registry {
	id := atomic.AddInt64(&registryCount, 1)
	prefix := fmt.Sprintf("jobengine_%d_", id)

	r := &Registry{
		JobsScheduled: expvar.NewInt(prefix + "jobs_scheduled_total"),
		JobsCompleted: expvar.NewInt(prefix + "jobs_completed_total"),
		JobsFailed:    expvar.NewInt(prefix + "jobs_failed_total"),
		JobsCanceled:  expvar.NewInt(prefix + "jobs_canceled_total"),
		FreeSlots:     expvar.NewInt(prefix + "worker_free_slots"),
		startTime:     time.Now(),
	}
	expvar.Publish(prefix+"uptime_seconds", expvar.Func(func() any {
		return int64(time.Since(r.startTime).Seconds())
	}))
	return r
}

// ObserveScheduled increments the scheduled-job counter.
func (r *Registry) ObserveScheduled() { r.JobsScheduled.Add(1) }

// ObserveTerminal increments the counter matching job's terminal state.
func (r *Registry) ObserveTerminal(job types.Job) {
	switch job.State {
	case types.Completed:
		r.JobsCompleted.Add(1)
	case types.Failed:
		r.JobsFailed.Add(1)
	case types.Canceled:
		r.JobsCanceled.Add(1)
	}
}

// SetFreeSlots records the worker pool's current free-slot count.
func (r *Registry) SetFreeSlots(n int) { r.FreeSlots.Set(int64(n)) }
