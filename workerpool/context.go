package workerpool

import (
	"github.com/bravo1goingdark/jobengine/internal/types"
)

// ThreadContext is the registry.ProgressReporter a goroutine-executed
// handler receives. It replaces the Python original's kwarg-injected
// update_progress/check_for_cancel closures with an explicit argument,
// since Go has no equivalent to binding free variables into a call by name.
type ThreadContext struct {
	trackProgress bool
	cancellable   bool
	cancel        <-chan struct{}
	onProgress    func(progress, total float64, stage string)
}

// UpdateProgress reports progress if the job opted into tracking; it is a
// no-op otherwise, matching the storage layer's "never fails the job"
// contract for progress reports.
func (c *ThreadContext) UpdateProgress(progress, total float64, stage string) {
	if !c.trackProgress || c.onProgress == nil {
		return
	}
	c.onProgress(progress, total, stage)
}

// CheckForCancel returns ErrUserCancelled once the pool has signaled
// cancellation for this job, provided the job was scheduled as cancellable.
// A non-cancellable job never observes the signal, matching the
// "cancellation request on a non-cancellable job is accepted but has no
// effect on execution" edge case.
func (c *ThreadContext) CheckForCancel() error {
	if !c.cancellable {
		return nil
	}
	select {
	case <-c.cancel:
		return types.ErrUserCancelled
	default:
		return nil
	}
}
