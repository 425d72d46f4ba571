package engine

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// WorkerMode selects the execution substrate for every slot in the engine's
// worker pool.
type WorkerMode string

const (
	// WorkerModeThread runs jobs as goroutines.
	WorkerModeThread WorkerMode = "THREAD"
	// WorkerModeProcess runs jobs in re-executed subprocesses.
	WorkerModeProcess WorkerMode = "PROCESS"
)

// Config controls how New assembles an Engine. The zero value is not
// usable; build one with DefaultConfig or LoadConfig.
type Config struct {
	// WorkerType selects THREAD or PROCESS execution.
	WorkerType WorkerMode `json:"worker_type"`
	// NumWorkers is the number of execution slots.
	NumWorkers int `json:"num_workers"`
	// StoragePath selects the durable bbolt file, or storage.Memory for
	// the non-durable in-process backend.
	StoragePath string `json:"storage_path"`

	// DispatchInterval is the dispatch loop's poll cadence.
	DispatchInterval time.Duration `json:"dispatch_interval"`
	// UpdateInterval is the update loop's poll cadence.
	UpdateInterval time.Duration `json:"update_interval"`
	// WorkerPollInterval is the worker pool's mailbox poll cadence.
	WorkerPollInterval time.Duration `json:"worker_poll_interval"`

	// MaxDispatchPerSecond throttles how many jobs the dispatch loop
	// starts per second; 0 disables throttling.
	MaxDispatchPerSecond float64 `json:"max_dispatch_per_second"`
	// DispatchBurst is the token-bucket burst size paired with
	// MaxDispatchPerSecond.
	DispatchBurst int `json:"dispatch_burst"`

	// ClearSchedule is a cron expression the engine runs clear(force=false)
	// on, e.g. "@every 1h". Empty disables the janitor.
	ClearSchedule string `json:"clear_schedule"`

	// WebhookURL, if set, receives a POST for every job's terminal state.
	WebhookURL string `json:"webhook_url"`
	// MetricsAddr, if set, serves /metrics and /healthz on this address.
	MetricsAddr string `json:"metrics_addr"`
	// AuditLogPath, if set, appends a CSV row for every terminal job.
	AuditLogPath string `json:"audit_log_path"`
	// MonitorAddr, if set, serves /status and /status/stream on this
	// address for external dashboards.
	MonitorAddr string `json:"monitor_addr"`

	LogLevel string `json:"log_level"`
}

// DefaultConfig returns a Config usable as-is for local development: an
// in-memory backend, two thread workers, no throttling, no ambient
// integrations.
func DefaultConfig() Config {
	return Config{
		WorkerType:           WorkerModeThread,
		NumWorkers:           2,
		StoragePath:          "",
		DispatchInterval:     20 * time.Millisecond,
		UpdateInterval:       10 * time.Millisecond,
		WorkerPollInterval:   20 * time.Millisecond,
		MaxDispatchPerSecond: 0,
		DispatchBurst:        1,
		LogLevel:             "info",
	}
}

// LoadConfig reads JSON config from disk, merges it over DefaultConfig,
// and validates the result. It never terminates the process; callers
// handle the returned error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %q", path)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config JSON")
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, errors.Wrap(err, "validate config")
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.WorkerType == "" {
		c.WorkerType = WorkerModeThread
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = 2
	}
	if c.DispatchInterval == 0 {
		c.DispatchInterval = 20 * time.Millisecond
	}
	if c.UpdateInterval == 0 {
		c.UpdateInterval = 10 * time.Millisecond
	}
	if c.WorkerPollInterval == 0 {
		c.WorkerPollInterval = 20 * time.Millisecond
	}
	if c.DispatchBurst == 0 {
		c.DispatchBurst = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.WorkerType != WorkerModeThread && c.WorkerType != WorkerModeProcess {
		return errors.Errorf("worker_type must be THREAD or PROCESS, got %q", c.WorkerType)
	}
	if c.NumWorkers <= 0 {
		return errors.New("num_workers must be positive")
	}
	if c.MaxDispatchPerSecond < 0 {
		return errors.New("max_dispatch_per_second cannot be negative")
	}
	return nil
}
