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

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.NumWorkers = 2
	e, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(false) })
	return e
}

func TestHappyPathCompletesWithResult(t *testing.T) {
	registry.Reset()
	registry.Register("engine-identity", func(_ registry.ProgressReporter, args, _ json.RawMessage) (any, error) {
		var v int
		require.NoError(t, json.Unmarshal(args, &v))
		return v, nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "engine-identity", Args: json.RawMessage(`9`)})
	require.NoError(t, err)

	job, err := e.Client().Wait(id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.Completed, job.State)
	assert.Equal(t, "9", string(job.Result))
}

func TestUserExceptionFailsJob(t *testing.T) {
	registry.Reset()
	registry.Register("engine-divzero", func(_ registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		return nil, assertDivByZero{}
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "engine-divzero"})
	require.NoError(t, err)

	job, err := e.Client().Wait(id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.Failed, job.State)
	assert.Contains(t, job.Exception, "division by zero")
}

type assertDivByZero struct{}

func (assertDivByZero) Error() string { return "division by zero" }

func TestCancellationOfRunningJobIsHonored(t *testing.T) {
	registry.Reset()
	started := make(chan struct{})
	registry.Register("engine-cancellable", func(ctx registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		close(started)
		for i := 0; i < 1000; i++ {
			if err := ctx.CheckForCancel(); err != nil {
				return nil, err
			}
			time.Sleep(5 * time.Millisecond)
		}
		return "finished", nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "engine-cancellable", Cancellable: true})
	require.NoError(t, err)

	<-started
	require.NoError(t, e.Client().Cancel(id))

	job, err := e.Client().Wait(id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.Canceled, job.State)
}

func TestClearForceRemovesEverythingAndCancelsRunning(t *testing.T) {
	registry.Reset()
	registry.Register("engine-long", func(ctx registry.ProgressReporter, _, _ json.RawMessage) (any, error) {
		for i := 0; i < 1000; i++ {
			if err := ctx.CheckForCancel(); err != nil {
				return nil, err
			}
			time.Sleep(5 * time.Millisecond)
		}
		return nil, nil
	})

	e := newTestEngine(t)
	id, err := e.Client().Schedule(types.Job{Func: "engine-long", Cancellable: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := e.Client().Status(id)
		return err == nil && job.State == types.Running
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Client().Clear(true))

	jobs, err := e.Client().AllJobs()
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
