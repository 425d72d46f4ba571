// Package scheduler runs the two cooperative loops that turn scheduled
// jobs into worker-pool dispatches and worker-pool messages back into
// storage mutations: the dispatch loop and the update loop.
package scheduler

import (
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/bravo1goingdark/jobengine/messaging"
	"github.com/bravo1goingdark/jobengine/storage"
	"golang.org/x/time/rate"
)

// Scheduler owns the dispatch loop (SCHEDULED -> QUEUED, START_JOB) and the
// update loop (worker-pool messages -> storage mutations). It never
// executes user code itself; that is the worker pool's job.
type Scheduler struct {
	store    storage.Backend
	bus      *messaging.Backend
	workerIn string // mailbox the worker pool listens on
	workerOut string // mailbox the worker pool reports onto
	log      logger.Logger
	limiter  *rate.Limiter

	mu        sync.Mutex
	freeSlots int

	dispatchInterval time.Duration
	updateInterval   time.Duration

	onTerminal func(types.Job)

	quit chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithDispatchInterval overrides the dispatch loop's poll cadence.
func WithDispatchInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.dispatchInterval = d }
}

// WithUpdateInterval overrides the update loop's poll cadence.
func WithUpdateInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.updateInterval = d }
}

// WithDispatchRateLimit caps how many jobs per second the dispatch loop will
// start, smoothing bursts of simultaneously-due scheduled jobs across the
// worker pool's slots instead of starting them all on the same tick.
func WithDispatchRateLimit(jobsPerSecond float64, burst int) Option {
	return func(s *Scheduler) { s.limiter = rate.NewLimiter(rate.Limit(jobsPerSecond), burst) }
}

// WithOnTerminal registers a callback invoked after a job reaches
// COMPLETED, FAILED, or CANCELED, carrying a snapshot of the job. Intended
// for ambient integrations (webhooks, audit logs, metrics counters); it
// runs synchronously on the update loop, so implementations must not
// block.
func WithOnTerminal(fn func(types.Job)) Option {
	return func(s *Scheduler) { s.onTerminal = fn }
}

// New constructs a Scheduler. numWorkers seeds the slot count; it is kept
// in sync afterward by SLOT_AVAILABLE messages from the pool.
func New(store storage.Backend, bus *messaging.Backend, workerIn, workerOut string, numWorkers int, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:            store,
		bus:              bus,
		workerIn:         workerIn,
		workerOut:        workerOut,
		log:              log,
		freeSlots:        numWorkers,
		dispatchInterval: 20 * time.Millisecond,
		updateInterval:   10 * time.Millisecond,
		quit:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the dispatch and update loops. Safe to call once.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.dispatchLoop()
	go s.updateLoop()
}

// Stop signals both loops to exit and waits for them to do so.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.dispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.dispatchTick()
		}
	}
}

// dispatchTick starts at most one job per call; the ticker cadence bounds
// how fast the loop drains a backlog of due jobs across available slots.
func (s *Scheduler) dispatchTick() {
	if s.limiter != nil && !s.limiter.Allow() {
		return
	}

	s.mu.Lock()
	hasSlot := s.freeSlots > 0
	s.mu.Unlock()
	if !hasSlot {
		return
	}

	job, ok, err := s.store.GetNextScheduledJob()
	if err != nil {
		s.log.Errorf("scheduler: get next scheduled job: %v", err)
		return
	}
	if !ok {
		return
	}

	if !s.tryQueue(job) {
		return
	}

	s.mu.Lock()
	s.freeSlots--
	s.mu.Unlock()

	s.bus.Send(s.workerIn, messaging.NewStartJob(messaging.StartJobPayload{
		JobID: job.ID, Func: job.Func, Args: job.Args, Kwargs: job.Kwargs,
		TrackProgress: job.TrackProgress, Cancellable: job.Cancellable,
	}))
}

// tryQueue marks job QUEUED, tolerating the race where a client cancels a
// job between GetNextScheduledJob returning it and this call: that is a
// legitimate outcome, not an engine bug, so it is logged and skipped
// rather than left to panic the dispatch loop.
func (s *Scheduler) tryQueue(job types.Job) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Warnf("scheduler: job %s no longer dispatchable (%v), skipping", job.ID, rec)
			ok = false
		}
	}()
	if err := s.store.MarkJobAsQueued(job.ID); err != nil {
		s.log.Warnf("scheduler: mark job %s queued: %v", job.ID, err)
		return false
	}
	return true
}

func (s *Scheduler) updateLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.drainUpdates()
		}
	}
}

func (s *Scheduler) drainUpdates() {
	for {
		msg, ok := s.bus.Pop(s.workerOut)
		if !ok {
			return
		}
		s.applyUpdate(msg)
	}
}

func (s *Scheduler) applyUpdate(msg messaging.Message) {
	switch msg.Type {
	case messaging.JobStarted:
		var p messaging.JobStartedPayload
		if s.decode(msg, &p) {
			s.logErr(s.store.MarkJobAsRunning(p.JobID))
		}
	case messaging.JobUpdated:
		var p messaging.JobUpdatedPayload
		if s.decode(msg, &p) {
			s.logErr(s.store.UpdateJobProgress(p.JobID, p.Progress, p.TotalProgress, p.Stage))
		}
	case messaging.JobCompleted:
		var p messaging.JobCompletedPayload
		if s.decode(msg, &p) {
			if s.logErr(s.store.CompleteJob(p.JobID, p.Result)) {
				s.notifyTerminal(p.JobID)
			}
		}
	case messaging.JobFailed:
		var p messaging.JobFailedPayload
		if s.decode(msg, &p) {
			var err error
			if p.Exception == types.ErrUserCancelled.Error() {
				err = s.store.MarkJobAsCanceled(p.JobID)
			} else {
				err = s.store.MarkJobAsFailed(p.JobID, p.Exception, p.Traceback)
			}
			if s.logErr(err) {
				s.notifyTerminal(p.JobID)
			}
		}
	case messaging.SlotAvailable:
		var p messaging.SlotAvailablePayload
		if s.decode(msg, &p) {
			s.mu.Lock()
			s.freeSlots = p.FreeSlots
			s.mu.Unlock()
		}
	default:
		panic(types.ProgrammerErrorf("scheduler: unknown message type %q on update mailbox", msg.Type))
	}
}

func (s *Scheduler) decode(msg messaging.Message, v any) bool {
	if err := messaging.Decode(msg, v); err != nil {
		s.log.Errorf("scheduler: malformed %s payload: %v", msg.Type, err)
		return false
	}
	return true
}

// logErr reports err if non-nil and returns whether the mutation actually
// applied (false for a nil-op caused by the job having been Cleared away).
func (s *Scheduler) logErr(err error) bool {
	if err == nil {
		return true
	}
	if types.IsJobNotFound(err) {
		// The job was removed (e.g. by Clear) while a message about it was
		// still in flight; nothing to apply.
		return false
	}
	s.log.Errorf("scheduler: %v", err)
	return false
}

// notifyTerminal invokes the configured terminal-state observer, if any,
// with a fresh snapshot of the job. Used to drive ambient integrations
// (webhooks, audit logs, metrics) without coupling them into the update
// loop's own mutation logic.
func (s *Scheduler) notifyTerminal(jobID string) {
	if s.onTerminal == nil {
		return
	}
	job, err := s.store.GetJob(jobID)
	if err != nil {
		return
	}
	s.onTerminal(job)
}
