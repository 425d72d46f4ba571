// Package webhook posts a job's terminal outcome to an operator-configured
// HTTP endpoint, adapted from the campaign-result notifier's goroutine-
// tracked client shape down to a single job's result.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/pkg/errors"
)

// JobResult is the payload POSTed to the configured webhook URL for every
// job reaching a terminal state.
type JobResult struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Exception string          `json:"exception,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Client posts JobResult notifications with goroutine tracking so Close
// can wait for in-flight deliveries before the engine releases resources.
type Client struct {
	url        string
	httpClient *http.Client
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// New builds a Client targeting url with a 30s request timeout.
func New(url string) *Client {
	return &Client{url: url, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Notify sends job's terminal outcome asynchronously; it returns once the
// request has been queued, not once delivered. Delivery failures (network
// errors, any response status) are dropped and never reported; only a
// closed client or a payload/request that cannot be built returns an error,
// so a failing webhook never affects job state.
func (c *Client) Notify(job types.Job) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errors.New("webhook: client is closed")
	}
	c.mu.RUnlock()

	result := JobResult{
		JobID:     job.ID,
		Status:    string(job.State),
		Result:    job.Result,
		Exception: job.Exception,
		UpdatedAt: job.UpdatedAt,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "webhook: marshal payload")
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "webhook: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jobengine-webhook/1.0")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			return
		}
		defer resp.Body.Close()
	}()
	return nil
}

// Close waits for all in-flight deliveries to finish and rejects further
// notifications.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.wg.Wait()
}
