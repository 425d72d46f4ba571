package messaging_test

import (
	"testing"

	"github.com/bravo1goingdark/jobengine/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPopFIFO(t *testing.T) {
	b := messaging.NewBackend()
	b.Send("mb", messaging.NewJobStarted("a"))
	b.Send("mb", messaging.NewJobStarted("b"))

	m1, ok := b.Pop("mb")
	require.True(t, ok)
	var p1 messaging.JobStartedPayload
	require.NoError(t, messaging.Decode(m1, &p1))
	assert.Equal(t, "a", p1.JobID)

	m2, ok := b.Pop("mb")
	require.True(t, ok)
	var p2 messaging.JobStartedPayload
	require.NoError(t, messaging.Decode(m2, &p2))
	assert.Equal(t, "b", p2.JobID)
}

func TestPopEmptyNeverBlocksOrErrors(t *testing.T) {
	b := messaging.NewBackend()
	_, ok := b.Pop("never-sent-to")
	assert.False(t, ok)
}

func TestSendAutoCreatesMailbox(t *testing.T) {
	b := messaging.NewBackend()
	assert.Equal(t, 0, b.Len("fresh"))
	b.Send("fresh", messaging.NewCancelJob("x"))
	assert.Equal(t, 1, b.Len("fresh"))
}

func TestPopMatchingRemovesOnlyMatch(t *testing.T) {
	b := messaging.NewBackend()
	b.Send("mb", messaging.NewJobFailed("a", "boom", ""))
	b.Send("mb", messaging.NewJobCompleted("b", nil))
	b.Send("mb", messaging.NewJobFailed("c", "boom2", ""))

	match, ok := b.PopMatching("mb", messaging.MatchJobID(messaging.JobFailed, "c"))
	require.True(t, ok)
	var p messaging.JobFailedPayload
	require.NoError(t, messaging.Decode(match, &p))
	assert.Equal(t, "c", p.JobID)

	// Remaining messages keep FIFO order, and the matched one is gone.
	assert.Equal(t, 2, b.Len("mb"))
	m, ok := b.Pop("mb")
	require.True(t, ok)
	var fp messaging.JobFailedPayload
	require.NoError(t, messaging.Decode(m, &fp))
	assert.Equal(t, "a", fp.JobID)
}

func TestCompilePredicate(t *testing.T) {
	pred, err := messaging.CompilePredicate(`type == "JOB_COMPLETED" && job_id == "x"`)
	require.NoError(t, err)

	assert.True(t, pred(messaging.NewJobCompleted("x", nil)))
	assert.False(t, pred(messaging.NewJobCompleted("y", nil)))
	assert.False(t, pred(messaging.NewJobFailed("x", "e", "")))
}

func TestSerializeUnknownTypeFails(t *testing.T) {
	m := messaging.Message{Type: "BOGUS"}
	_, err := m.Serialize()
	assert.Error(t, err)
}
