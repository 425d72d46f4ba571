package checkpoint_test

import (
	"path/filepath"
	"testing"

	"github.com/bravo1goingdark/jobengine/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db.checkpoint")
	s, err := checkpoint.Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Save("job-1", 40, 100, "processing"))

	entry, ok := s.Load("job-1")
	require.True(t, ok)
	assert.Equal(t, 40.0, entry.Progress)
	assert.Equal(t, 100.0, entry.Total)
	assert.Equal(t, "processing", entry.Stage)
}

func TestSavePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db.checkpoint")
	s, err := checkpoint.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save("job-1", 5, 10, "step-1"))

	reopened, err := checkpoint.Open(path)
	require.NoError(t, err)
	entry, ok := reopened.Load("job-1")
	require.True(t, ok)
	assert.Equal(t, 5.0, entry.Progress)
}

func TestDeleteRemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db.checkpoint")
	s, err := checkpoint.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save("job-1", 1, 2, ""))

	require.NoError(t, s.Delete("job-1"))
	_, ok := s.Load("job-1")
	assert.False(t, ok)
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.checkpoint")
	s, err := checkpoint.Open(path)
	require.NoError(t, err)
	_, ok := s.Load("anything")
	assert.False(t, ok)
}
