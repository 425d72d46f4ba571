package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltScheduleAndGetJobRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	b, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)
	defer b.Close()

	id, err := b.ScheduleJob(types.Job{Func: "identity"})
	require.NoError(t, err)

	job, err := b.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, types.Scheduled, job.State)
}

func TestBoltCompleteJobAfterCancelingSucceeds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	b, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)
	defer b.Close()

	id, err := b.ScheduleJob(types.Job{Func: "identity"})
	require.NoError(t, err)

	require.NoError(t, b.MarkJobAsQueued(id))
	require.NoError(t, b.MarkJobAsRunning(id))
	require.NoError(t, b.MarkJobAsCanceling(id))
	require.NoError(t, b.CompleteJob(id, []byte(`"done"`)))

	job, err := b.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, types.Completed, job.State)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	b, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)

	id, err := b.ScheduleJob(types.Job{Func: "identity"})
	require.NoError(t, err)
	require.NoError(t, b.MarkJobAsQueued(id))
	require.NoError(t, b.Close())

	reopened, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()

	job, err := reopened.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, types.Queued, job.State)
}

func TestBoltRecoversOrphanedRunningJobAsFailed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	b, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)

	id, err := b.ScheduleJob(types.Job{Func: "identity"})
	require.NoError(t, err)
	require.NoError(t, b.MarkJobAsQueued(id))
	require.NoError(t, b.MarkJobAsRunning(id))
	require.NoError(t, b.Close()) // simulate the process dying mid-job

	recovered, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)
	defer recovered.Close()

	job, err := recovered.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, types.Failed, job.State)
	assert.Contains(t, job.Exception, "worker died")
}

func TestBoltClearForce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	b, err := storage.NewBoltBackend(dbPath, nil)
	require.NoError(t, err)
	defer b.Close()

	id, err := b.ScheduleJob(types.Job{Func: "identity"})
	require.NoError(t, err)

	require.NoError(t, b.Clear(true))
	_, err = b.GetJob(id)
	assert.True(t, types.IsJobNotFound(err))
}
