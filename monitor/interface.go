// Package monitor serves a read-only view of engine state over HTTP: a
// point-in-time JSON snapshot and a long-lived stream of updates, for
// dashboards and operators watching a running engine from outside the
// process. It observes; it never mutates job state.
package monitor

import "github.com/bravo1goingdark/jobengine/internal/types"

// Reporter is the subset of engine.Client a monitor.Server needs: reading
// all jobs. Terminal-state transitions reach the server through its own
// Broadcast method, not through this interface.
type Reporter interface {
	AllJobs() ([]types.Job, error)
}
