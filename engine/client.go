package engine

import (
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/messaging"
	"github.com/bravo1goingdark/jobengine/storage"
)

// Client is the only supported way to interact with a running Engine:
// schedule jobs, inspect or wait on their state, and cancel or clear them.
// Every method that returns a Job returns Job.Clone(), a defensive snapshot
// rather than a live reference into storage.
type Client struct {
	store      storage.Backend
	bus        *messaging.Backend
	workerIn   string
	onTerminal func(types.Job)
}

// Schedule persists a new job in state SCHEDULED and returns its id. The
// dispatch loop picks it up on its own schedule; Schedule does not block
// waiting for it to run.
func (c *Client) Schedule(job types.Job) (string, error) {
	return c.store.ScheduleJob(job)
}

// Status returns a snapshot of jobID's current state.
func (c *Client) Status(jobID string) (types.Job, error) {
	job, err := c.store.GetJob(jobID)
	if err != nil {
		return types.Job{}, err
	}
	return job.Clone(), nil
}

// AllJobs returns a snapshot of every job known to the engine, in any state.
func (c *Client) AllJobs() ([]types.Job, error) {
	jobs, err := c.store.GetAllJobs()
	if err != nil {
		return nil, err
	}
	clones := make([]types.Job, len(jobs))
	for i, j := range jobs {
		clones[i] = j.Clone()
	}
	return clones, nil
}

// Wait blocks until jobID reaches a terminal state or timeout elapses
// (timeout <= 0 waits indefinitely), returning the terminal snapshot.
func (c *Client) Wait(jobID string, timeout time.Duration) (types.Job, error) {
	job, err := c.store.GetJob(jobID)
	if err != nil {
		return types.Job{}, err
	}
	if job.State.Terminal() {
		return job.Clone(), nil
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := timeout
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return types.Job{}, types.NewTimeout(jobID)
			}
		}
		job, err = c.store.WaitForJobUpdate(jobID, remaining)
		if err != nil {
			return types.Job{}, err
		}
		if job.State.Terminal() {
			return job.Clone(), nil
		}
	}
}

// WaitForUpdate blocks until jobID's next single update — any state
// transition or progress report, whichever comes first — or timeout
// elapses (timeout <= 0 waits indefinitely). Unlike Wait, it does not loop
// past a non-terminal update; callers that only care about the final
// outcome should use Wait instead.
func (c *Client) WaitForUpdate(jobID string, timeout time.Duration) (types.Job, error) {
	job, err := c.store.WaitForJobUpdate(jobID, timeout)
	if err != nil {
		return types.Job{}, err
	}
	return job.Clone(), nil
}

// Cancel requests cancellation of jobID. It is always accepted and
// idempotent: a QUEUED job whose START_JOB dispatch is still sitting unread
// in the worker pool's inbox is pulled back out and resolved straight to
// CANCELED, since the pool never got a handle to it to cancel later; any
// other non-terminal job is marked CANCELING and, if RUNNING, additionally
// sent a CANCEL_JOB directly to the worker pool so cancellation takes
// effect without waiting for a scheduler poll tick. Cancellation remains
// cooperative — a non-cancellable or already-terminal job ignores or
// rejects the request per the normal state machine.
func (c *Client) Cancel(jobID string) error {
	job, err := c.store.GetJob(jobID)
	if err != nil {
		return err
	}

	if job.State == types.Queued {
		if _, found := c.bus.PopMatching(c.workerIn, messaging.MatchJobID(messaging.StartJob, jobID)); found {
			if err := c.store.MarkJobAsCanceling(jobID); err != nil {
				return err
			}
			return c.store.MarkJobAsCanceled(jobID)
		}
	}

	wasRunning := job.State == types.Running
	if err := c.store.MarkJobAsCanceling(jobID); err != nil {
		return err
	}
	if wasRunning {
		c.bus.Send(c.workerIn, messaging.NewCancelJob(jobID))
	}
	return nil
}

// Clear removes terminal jobs (force=false), or every job regardless of
// state (force=true). With force=true any job still RUNNING is also sent a
// CANCEL_JOB so the worker pool stops executing it even though its storage
// record is already gone; the terminal-state observer is invoked directly
// for it since no update-loop message will ever find a matching job to
// apply.
func (c *Client) Clear(force bool) error {
	if force {
		jobs, err := c.store.GetAllJobs()
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if job.State == types.Running {
				c.bus.Send(c.workerIn, messaging.NewCancelJob(job.ID))
				if c.onTerminal != nil {
					cleared := job.Clone()
					cleared.State = types.Canceled
					c.onTerminal(cleared)
				}
			}
		}
	}
	return c.store.Clear(force)
}
