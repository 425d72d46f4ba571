package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	jobsBucket  = "jobs"
	leaseBucket = "leases"
)

// Logger is the minimal logging interface the durable backend needs,
// satisfied by logger.Logger without creating an import cycle.
type Logger interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// BoltBackend is the durable storage backend, selected whenever
// engine.Config.StoragePath is a filesystem path rather than storage.Memory.
// It generalizes database/boltdb.go's jobs+locks schema into the full job
// state machine, adding crash recovery for jobs an earlier process left
// RUNNING or QUEUED.
type BoltBackend struct {
	mu         sync.Mutex
	db         *bbolt.DB
	jobs       map[string]*entry
	instanceID string
	log        Logger
}

// NewBoltBackend opens (creating if necessary) a bbolt database at path,
// warms an in-memory cache from it, and recovers any job left RUNNING or
// QUEUED by a previous, presumably crashed, process into FAILED with a
// synthetic WorkerDied exception.
func NewBoltBackend(path string, log Logger) (*BoltBackend, error) {
	if log == nil {
		log = noopLogger{}
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open bbolt at %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(jobsBucket)); err != nil {
			return errors.Wrap(err, "create jobs bucket")
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(leaseBucket)); err != nil {
			return errors.Wrap(err, "create leases bucket")
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "storage: initialize bbolt buckets")
	}

	b := &BoltBackend{
		db:         db,
		jobs:       make(map[string]*entry),
		instanceID: uuid.NewString(),
		log:        log,
	}
	if err := b.warmCache(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BoltBackend) warmCache() error {
	var recoveries []types.Job
	err := b.db.View(func(tx *bbolt.Tx) error {
		jb := tx.Bucket([]byte(jobsBucket))
		return jb.ForEach(func(_, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return errors.Wrap(err, "storage: unmarshal job during warm cache")
			}
			b.jobs[job.ID] = &entry{job: job, updated: make(chan struct{})}
			if job.State == types.Running || job.State == types.Queued {
				recoveries = append(recoveries, job)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	for _, job := range recoveries {
		lease := b.readLease(job.ID)
		reason := "no worker lease found for job left " + string(job.State)
		if lease != "" {
			reason = fmt.Sprintf("abandoned by worker lease %s, process restarted", lease)
		}
		b.log.Warnf("storage: recovering orphaned job %s from %s: %s", job.ID, job.State, reason)
		if err := b.MarkJobAsFailed(job.ID, types.NewWorkerDied(reason).Error(), ""); err != nil {
			b.log.Errorf("storage: failed to recover orphaned job %s: %v", job.ID, err)
		}
	}
	return nil
}

func (b *BoltBackend) persist(tx *bbolt.Tx, job types.Job) error {
	jb := tx.Bucket([]byte(jobsBucket))
	encoded, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "storage: marshal job")
	}
	return errors.Wrap(jb.Put([]byte(job.ID), encoded), "storage: put job")
}

func (b *BoltBackend) writeLease(jobID string) {
	_ = b.db.Update(func(tx *bbolt.Tx) error {
		lb := tx.Bucket([]byte(leaseBucket))
		return lb.Put([]byte(jobID), []byte(fmt.Sprintf("%s:%d", b.instanceID, time.Now().UnixNano())))
	})
}

func (b *BoltBackend) clearLease(jobID string) {
	_ = b.db.Update(func(tx *bbolt.Tx) error {
		lb := tx.Bucket([]byte(leaseBucket))
		return lb.Delete([]byte(jobID))
	})
}

func (b *BoltBackend) readLease(jobID string) string {
	var lease string
	_ = b.db.View(func(tx *bbolt.Tx) error {
		lb := tx.Bucket([]byte(leaseBucket))
		if v := lb.Get([]byte(jobID)); v != nil {
			lease = string(v)
		}
		return nil
	})
	return lease
}

func (b *BoltBackend) ScheduleJob(job types.Job) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := b.jobs[job.ID]; exists {
		panic(types.ProgrammerErrorf("job_id %q already scheduled; ids are never reused", job.ID))
	}
	job.State = types.Scheduled
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	job.UpdatedAt = job.ScheduledAt

	if err := b.db.Update(func(tx *bbolt.Tx) error { return b.persist(tx, job) }); err != nil {
		return "", err
	}
	b.jobs[job.ID] = &entry{job: job, updated: make(chan struct{})}
	return job.ID, nil
}

func (b *BoltBackend) GetJob(jobID string) (types.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.jobs[jobID]
	if !ok {
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	return e.job.Clone(), nil
}

func (b *BoltBackend) GetAllJobs() ([]types.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Job, 0, len(b.jobs))
	for _, e := range b.jobs {
		out = append(out, e.job.Clone())
	}
	return out, nil
}

func (b *BoltBackend) GetNextScheduledJob() (types.Job, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var candidates []types.Job
	for _, e := range b.jobs {
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

func (b *BoltBackend) transition(jobID string, fn func(*types.Job)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.jobs[jobID]
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

	if err := b.db.Update(func(tx *bbolt.Tx) error { return b.persist(tx, next) }); err != nil {
		return err
	}
	e.job = next
	close(e.updated)
	e.updated = make(chan struct{})
	return nil
}

func (b *BoltBackend) MarkJobAsQueued(jobID string) error {
	return b.transition(jobID, func(j *types.Job) { j.State = types.Queued })
}

func (b *BoltBackend) MarkJobAsRunning(jobID string) error {
	err := b.transition(jobID, func(j *types.Job) { j.State = types.Running })
	if err == nil {
		b.writeLease(jobID)
	}
	return err
}

func (b *BoltBackend) MarkJobAsCanceling(jobID string) error {
	return b.transition(jobID, func(j *types.Job) {
		if j.State.Terminal() || j.State == types.Canceling {
			return
		}
		j.State = types.Canceling
	})
}

func (b *BoltBackend) MarkJobAsCanceled(jobID string) error {
	err := b.transition(jobID, func(j *types.Job) { j.State = types.Canceled })
	if err == nil {
		b.clearLease(jobID)
	}
	return err
}

func (b *BoltBackend) CompleteJob(jobID string, result json.RawMessage) error {
	err := b.transition(jobID, func(j *types.Job) {
		j.State = types.Completed
		j.Result = result
	})
	if err == nil {
		b.clearLease(jobID)
	}
	return err
}

func (b *BoltBackend) MarkJobAsFailed(jobID string, exception, traceback string) error {
	err := b.transition(jobID, func(j *types.Job) {
		j.State = types.Failed
		j.Exception = exception
		j.Traceback = traceback
	})
	if err == nil {
		b.clearLease(jobID)
	}
	return err
}

func (b *BoltBackend) UpdateJobProgress(jobID string, progress, total float64, stage string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.jobs[jobID]
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

	if err := b.db.Update(func(tx *bbolt.Tx) error { return b.persist(tx, e.job) }); err != nil {
		return err
	}
	close(e.updated)
	e.updated = make(chan struct{})
	return nil
}

func (b *BoltBackend) WaitForJobUpdate(jobID string, timeout time.Duration) (types.Job, error) {
	b.mu.Lock()
	e, ok := b.jobs[jobID]
	if !ok {
		b.mu.Unlock()
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	ch := e.updated
	b.mu.Unlock()

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

	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok = b.jobs[jobID]
	if !ok {
		return types.Job{}, types.NewJobNotFound(jobID)
	}
	return e.job.Clone(), nil
}

func (b *BoltBackend) Clear(force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var toDelete []string
	for id, e := range b.jobs {
		if force || e.job.State.Terminal() {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		jb := tx.Bucket([]byte(jobsBucket))
		lb := tx.Bucket([]byte(leaseBucket))
		for _, id := range toDelete {
			if err := jb.Delete([]byte(id)); err != nil {
				return errors.Wrap(err, "storage: delete job")
			}
			_ = lb.Delete([]byte(id))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range toDelete {
		delete(b.jobs, id)
	}
	return nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
