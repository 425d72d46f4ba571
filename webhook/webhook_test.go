package webhook_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyDeliversJobOutcome(t *testing.T) {
	var got atomic.Value
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var result webhook.JobResult
		require.NoError(t, json.NewDecoder(r.Body).Decode(&result))
		got.Store(result)
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer server.Close()

	client := webhook.New(server.URL)
	defer client.Close()

	err := client.Notify(types.Job{
		ID:     "job-1",
		State:  types.Completed,
		Result: json.RawMessage(`{"ok":true}`),
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}

	result := got.Load().(webhook.JobResult)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "COMPLETED", result.Status)
}

func TestNotifyAfterCloseReturnsError(t *testing.T) {
	client := webhook.New("http://example.invalid/webhook")
	client.Close()

	err := client.Notify(types.Job{ID: "job-2", State: types.Failed})
	assert.Error(t, err)
}
