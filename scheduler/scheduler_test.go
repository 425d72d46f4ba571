package scheduler_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/bravo1goingdark/jobengine/messaging"
	"github.com/bravo1goingdark/jobengine/scheduler"
	"github.com/bravo1goingdark/jobengine/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	workerIn  = "worker-in"
	workerOut = "worker-out"
)

func newTestScheduler(store storage.Backend, bus *messaging.Backend, slots int) *scheduler.Scheduler {
	return scheduler.New(store, bus, workerIn, workerOut, slots, logger.New("test"),
		scheduler.WithDispatchInterval(time.Millisecond),
		scheduler.WithUpdateInterval(time.Millisecond))
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDispatchLoopQueuesAndSendsStartJob(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	id, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)

	s := newTestScheduler(store, bus, 1)
	s.Start()
	defer s.Stop()

	eventually(t, func() bool {
		job, err := store.GetJob(id)
		return err == nil && job.State == types.Queued
	})

	msg, ok := bus.Pop(workerIn)
	require.True(t, ok)
	assert.Equal(t, messaging.StartJob, msg.Type)
	var payload messaging.StartJobPayload
	require.NoError(t, messaging.Decode(msg, &payload))
	assert.Equal(t, id, payload.JobID)
}

func TestDispatchLoopWaitsForFreeSlot(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	_, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)

	s := newTestScheduler(store, bus, 0)
	s.Start()
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	_, ok := bus.Pop(workerIn)
	assert.False(t, ok, "no job should be dispatched with zero free slots")
}

func TestUpdateLoopAppliesJobStartedAndCompleted(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	id, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)
	require.NoError(t, store.MarkJobAsQueued(id))

	s := newTestScheduler(store, bus, 1)
	s.Start()
	defer s.Stop()

	bus.Send(workerOut, messaging.NewJobStarted(id))
	eventually(t, func() bool {
		job, _ := store.GetJob(id)
		return job.State == types.Running
	})

	bus.Send(workerOut, messaging.NewJobCompleted(id, json.RawMessage(`{"ok":true}`)))
	eventually(t, func() bool {
		job, _ := store.GetJob(id)
		return job.State == types.Completed
	})
	job, err := store.GetJob(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(job.Result))
}

func TestUpdateLoopRewritesUserCancelledFailureAsCanceled(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	id, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)
	require.NoError(t, store.MarkJobAsQueued(id))
	require.NoError(t, store.MarkJobAsRunning(id))
	require.NoError(t, store.MarkJobAsCanceling(id))

	s := newTestScheduler(store, bus, 1)
	s.Start()
	defer s.Stop()

	bus.Send(workerOut, messaging.NewJobFailed(id, types.ErrUserCancelled.Error(), ""))
	eventually(t, func() bool {
		job, _ := store.GetJob(id)
		return job.State == types.Canceled
	})
}

func TestUpdateLoopTracksFreeSlotsFromSlotAvailable(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	idA, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)
	idB, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)

	s := newTestScheduler(store, bus, 1)
	s.Start()
	defer s.Stop()

	eventually(t, func() bool { _, ok := bus.Pop(workerIn); return ok })

	// Only one slot: the second job must not be dispatched yet.
	time.Sleep(20 * time.Millisecond)
	_, dispatchedSecond := bus.Pop(workerIn)
	assert.False(t, dispatchedSecond)

	bus.Send(workerOut, messaging.NewSlotAvailable(1))

	eventually(t, func() bool { _, ok := bus.Pop(workerIn); return ok })

	jobA, _ := store.GetJob(idA)
	jobB, _ := store.GetJob(idB)
	assert.True(t, jobA.State == types.Queued || jobB.State == types.Queued)
}

func TestDispatchLoopSkipsJobCanceledBeforeQueuing(t *testing.T) {
	store := storage.NewMemoryBackend()
	bus := messaging.NewBackend()
	id, err := store.ScheduleJob(types.Job{Func: "noop"})
	require.NoError(t, err)
	require.NoError(t, store.MarkJobAsCanceling(id))

	s := newTestScheduler(store, bus, 1)
	s.Start()
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	_, ok := bus.Pop(workerIn)
	assert.False(t, ok)
}
