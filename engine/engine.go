// Package engine assembles the messaging bus, storage backend, worker
// pool, and scheduler into a single running job engine, and exposes the
// Client facade as the only supported way to interact with it.
package engine

import (
	"github.com/bravo1goingdark/jobengine/auditlog"
	"github.com/bravo1goingdark/jobengine/checkpoint"
	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/bravo1goingdark/jobengine/messaging"
	"github.com/bravo1goingdark/jobengine/metrics"
	"github.com/bravo1goingdark/jobengine/monitor"
	"github.com/bravo1goingdark/jobengine/scheduler"
	"github.com/bravo1goingdark/jobengine/storage"
	"github.com/bravo1goingdark/jobengine/webhook"
	"github.com/bravo1goingdark/jobengine/workerpool"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Engine owns every long-running component and is torn down as a unit.
// Callers interact with it only through Client, obtained via Engine.Client.
type Engine struct {
	cfg Config
	log logger.Logger

	store storage.Backend
	bus   *messaging.Backend
	pool  *workerpool.Pool
	sched *scheduler.Scheduler

	janitor *scheduler.Janitor
	metrics *metrics.Server
	hook    *webhook.Client
	audit   *auditlog.Logger
	mon     *monitor.Server

	workerIn  string
	workerOut string

	client *Client
}

// Init must be the first statement in a host binary's main() that wants
// WorkerModeProcess workers: it delegates to workerpool.Init, which runs
// the re-executed worker child loop and never returns if this process was
// spawned as one. Callers that never use PROCESS mode may skip it.
func Init() bool { return workerpool.Init() }

// New assembles and starts an Engine from cfg. The returned Engine is
// immediately live: scheduled jobs begin dispatching as soon as the caller
// uses the Client.
func New(cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "engine: invalid config")
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, errors.Wrapf(err, "engine: invalid log_level %q", cfg.LogLevel)
	}

	log := logger.New("engine")

	store, err := newStore(cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "engine: open storage")
	}

	e := &Engine{
		cfg:       cfg,
		log:       log,
		store:     store,
		bus:       messaging.NewBackend(),
		workerIn:  "worker-inbox-" + uuid.NewString(),
		workerOut: "worker-outbox-" + uuid.NewString(),
	}

	if cfg.AuditLogPath != "" {
		auditLogger, err := auditlog.New(cfg.AuditLogPath)
		if err != nil {
			store.Close()
			return nil, errors.Wrap(err, "engine: open audit log")
		}
		e.audit = auditLogger
	}
	if cfg.WebhookURL != "" {
		e.hook = webhook.New(cfg.WebhookURL)
	}
	if cfg.MetricsAddr != "" {
		e.metrics = metrics.NewServer(cfg.MetricsAddr, log)
		e.metrics.Start()
	}

	workerType := workerpool.WorkerThread
	if cfg.WorkerType == WorkerModeProcess {
		workerType = workerpool.WorkerProcess
	}
	poolOpts := []workerpool.Option{workerpool.WithPollInterval(cfg.WorkerPollInterval)}
	if cfg.WorkerType == WorkerModeProcess && cfg.StoragePath != storage.Memory {
		store, err := checkpoint.Open(cfg.StoragePath + ".checkpoint")
		if err != nil {
			e.store.Close()
			return nil, errors.Wrap(err, "engine: open checkpoint store")
		}
		poolOpts = append(poolOpts, workerpool.WithCheckpoints(store))
	}
	e.pool = workerpool.NewPool(e.bus, e.workerIn, e.workerOut, cfg.NumWorkers, workerType, logger.New("workerpool"), poolOpts...)

	schedOpts := []scheduler.Option{
		scheduler.WithDispatchInterval(cfg.DispatchInterval),
		scheduler.WithUpdateInterval(cfg.UpdateInterval),
		scheduler.WithOnTerminal(e.onTerminal),
	}
	if cfg.MaxDispatchPerSecond > 0 {
		schedOpts = append(schedOpts, scheduler.WithDispatchRateLimit(cfg.MaxDispatchPerSecond, cfg.DispatchBurst))
	}
	e.sched = scheduler.New(store, e.bus, e.workerIn, e.workerOut, cfg.NumWorkers, logger.New("scheduler"), schedOpts...)

	if cfg.ClearSchedule != "" {
		janitor, err := scheduler.NewJanitor(store, cfg.ClearSchedule, logger.New("janitor"))
		if err != nil {
			store.Close()
			return nil, errors.Wrap(err, "engine: build janitor")
		}
		e.janitor = janitor
		e.janitor.Start()
	}

	e.pool.Start()
	e.sched.Start()

	e.client = &Client{store: store, bus: e.bus, workerIn: e.workerIn, onTerminal: e.onTerminal}

	if cfg.MonitorAddr != "" {
		e.mon = monitor.NewServer(cfg.MonitorAddr, e.client, logger.New("monitor"))
		e.mon.Start()
	}

	return e, nil
}

func newStore(cfg Config, log logger.Logger) (storage.Backend, error) {
	if cfg.StoragePath == storage.Memory {
		return storage.NewMemoryBackend(), nil
	}
	return storage.NewBoltBackend(cfg.StoragePath, log)
}

// onTerminal fans a terminal job snapshot out to every configured ambient
// integration. Each is best-effort: a failing webhook or audit write is
// logged, never allowed to affect job state.
func (e *Engine) onTerminal(job types.Job) {
	if e.metrics != nil {
		e.metrics.ObserveTerminal(job)
	}
	if e.audit != nil {
		if err := e.audit.Record(job); err != nil {
			e.log.Errorf("engine: audit log write: %v", err)
		}
	}
	if e.hook != nil {
		if err := e.hook.Notify(job); err != nil {
			e.log.Errorf("engine: webhook notify: %v", err)
		}
	}
	if e.mon != nil {
		e.mon.Broadcast()
	}
}

// Client returns the facade used to schedule, inspect, and control jobs.
func (e *Engine) Client() *Client { return e.client }

// Shutdown stops the dispatch/update loops and worker pool, optionally
// clearing every job regardless of state, then releases storage resources. It is the
// three-step teardown: stop accepting new work, let in-flight work finish
// (or be cancelled), release resources.
func (e *Engine) Shutdown(clearOnShutdown bool) error {
	if e.janitor != nil {
		e.janitor.Stop()
	}
	e.sched.Stop()
	e.pool.Shutdown(true)
	if e.metrics != nil {
		e.metrics.Stop()
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.hook != nil {
		e.hook.Close()
	}
	if e.mon != nil {
		if err := e.mon.Stop(); err != nil {
			e.log.Errorf("engine: stop monitor: %v", err)
		}
	}

	if clearOnShutdown {
		if err := e.store.Clear(true); err != nil {
			e.log.Errorf("engine: clear on shutdown: %v", err)
		}
	}
	return e.store.Close()
}
