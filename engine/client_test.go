package engine_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bravo1goingdark/jobengine/engine"
	"github.com/bravo1goingdark/jobengine/internal/registry"
	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOnUnknownJobReturnsJobNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Client().Status("does-not-exist")
	require.Error(t, err)
	assert.True(t, types.IsJobNotFound(err))
}

func TestWaitTimesOutOnJobThatNeverCompletes(t *testing.T) {
	registry.Reset()
	registry.Register("client-forever", func(_ registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		time.Sleep(time.Second)
		return nil, nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "client-forever"})
	require.NoError(t, err)

	_, err = e.Client().Wait(id, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, types.IsTimeout(err))
}

func TestWaitForUpdateReturnsBeforeJobTerminates(t *testing.T) {
	registry.Reset()
	registry.Register("client-progress", func(ctx registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		ctx.UpdateProgress(1, 10, "started")
		time.Sleep(500 * time.Millisecond)
		return nil, nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "client-progress", TrackProgress: true})
	require.NoError(t, err)

	job, err := e.Client().WaitForUpdate(id, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, job.State.Terminal())
}

func TestCancelOfQueuedJobPullsBackUnstartedDispatch(t *testing.T) {
	registry.Reset()
	registry.Register("client-never-runs", func(_ registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		t.Fatal("handler must not run once its QUEUED dispatch was cancelled")
		return nil, nil
	})

	cfg := engine.DefaultConfig()
	cfg.NumWorkers = 1
	// The worker pool's own poll loop must not get a chance to drain the
	// START_JOB this test relies on still sitting in its inbox.
	cfg.WorkerPollInterval = time.Hour
	e, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(false) })

	id, err := e.Client().Schedule(types.Job{Func: "client-never-runs"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := e.Client().Status(id)
		return err == nil && job.State == types.Queued
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Client().Cancel(id))

	job, err := e.Client().Status(id)
	require.NoError(t, err)
	assert.Equal(t, types.Canceled, job.State)
}

func TestCancellationOfNonCancellableLeavesJobRunningToCompletion(t *testing.T) {
	registry.Reset()
	registry.Register("client-uncancellable", func(_ registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		time.Sleep(150 * time.Millisecond)
		return "slept", nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "client-uncancellable", Cancellable: false})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := e.Client().Status(id)
		return err == nil && job.State == types.Running
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Client().Cancel(id))

	job, err := e.Client().Status(id)
	require.NoError(t, err)
	assert.Equal(t, types.Canceling, job.State)

	job, err = e.Client().Wait(id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.Completed, job.State)
}
