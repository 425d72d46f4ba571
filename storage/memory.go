package storage

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/google/uuid"
)

type entry struct {
	job     types.Job
	updated chan struct{} // closed and replaced on every mutation
}

// MemoryBackend is the in-process, non-durable storage backend selected by
// engine.Config.StoragePath == storage.Memory.
type MemoryBackend struct {
	mu   sync.Mutex
	jobs map[string]*entry
}

// NewMemoryBackend constructs an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{jobs: make(map[string]*entry)}
}

func (m *MemoryBackend) ScheduleJob(job types.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := m.jobs[job.ID]; exists {
		panic(types.ProgrammerErrorf("job_id %q already scheduled; ids are never reused", job.ID))
	}
	job.State = types.Scheduled
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	job.UpdatedAt = job.ScheduledAt
	m.jobs[job.ID] = &entry{job: job, updated: make(chan struct{})}
	return job.ID, nil
}

func (m *MemoryBackend) GetJob(jobID string) (types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	return e.job.Clone(), nil
}

func (m *MemoryBackend) GetAllJobs() ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job.Clone())
	}
	return out, nil
}

func (m *MemoryBackend) GetNextScheduledJob() (types.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []types.Job
	for _, e := range m.jobs {
		if e.job.State == types.Scheduled {
			candidates = append(candidates, e.job)
		}
	}
	if len(candidates) == 0 {
		return types.Job{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ScheduledAt.Equal(candidates[j].ScheduledAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].ScheduledAt.Before(candidates[j].ScheduledAt)
	})
	return candidates[0].Clone(), true, nil
}

// transition applies fn to a copy of the job under jobID, validates the
// resulting state change against types.CanTransition, stores the copy, and
// wakes any waiters. An illegal transition is an engine-internal invariant
// violation and panics rather than being swallowed; the stored job is left
// unchanged.
func (m *MemoryBackend) transition(jobID string, fn func(*types.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return types.NewJobNotFound(jobID)
	}
	before := e.job.State
	next := e.job
	fn(&next)
	if next.State != before && !types.CanTransition(before, next.State) {
		panic(types.ProgrammerErrorf("illegal job transition %s -> %s for job %s", before, next.State, jobID))
	}
	next.UpdatedAt = time.Now()
	e.job = next
	close(e.updated)
	e.updated = make(chan struct{})
	return nil
}

func (m *MemoryBackend) MarkJobAsQueued(jobID string) error {
	return m.transition(jobID, func(j *types.Job) { j.State = types.Queued })
}

func (m *MemoryBackend) MarkJobAsRunning(jobID string) error {
	return m.transition(jobID, func(j *types.Job) { j.State = types.Running })
}

func (m *MemoryBackend) MarkJobAsCanceling(jobID string) error {
	// Idempotent and always accepted, per the cooperative-cancellation
	// semantics: re-requesting cancellation on an already-CANCELING job
	// (or calling it on a job already in a terminal state) is a no-op
	// transition, not an error.
	return m.transition(jobID, func(j *types.Job) {
		if j.State.Terminal() || j.State == types.Canceling {
			return
		}
		j.State = types.Canceling
	})
}

func (m *MemoryBackend) MarkJobAsCanceled(jobID string) error {
	return m.transition(jobID, func(j *types.Job) { j.State = types.Canceled })
}

func (m *MemoryBackend) CompleteJob(jobID string, result json.RawMessage) error {
	return m.transition(jobID, func(j *types.Job) {
		j.State = types.Completed
		j.Result = result
	})
}

func (m *MemoryBackend) MarkJobAsFailed(jobID string, exception, traceback string) error {
	return m.transition(jobID, func(j *types.Job) {
		j.State = types.Failed
		j.Exception = exception
		j.Traceback = traceback
	})
}

func (m *MemoryBackend) UpdateJobProgress(jobID string, progress, total float64, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return types.NewJobNotFound(jobID)
	}
	if total > 0 {
		e.job.TotalProgress = total
	}
	e.job.Progress = types.ClampProgress(progress, e.job.TotalProgress)
	if stage != "" {
		e.job.Stage = stage
	}
	e.job.UpdatedAt = time.Now()
	close(e.updated)
	e.updated = make(chan struct{})
	return nil
}

func (m *MemoryBackend) WaitForJobUpdate(jobID string, timeout time.Duration) (types.Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	ch := e.updated
	m.mu.Unlock()

	if timeout <= 0 {
		<-ch
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
			return types.Job{}, types.NewTimeout(jobID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok = m.jobs[jobID]
	if !ok {
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	return e.job.Clone(), nil
}

func (m *MemoryBackend) Clear(force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.jobs {
		if force || e.job.State.Terminal() {
			delete(m.jobs, id)
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
