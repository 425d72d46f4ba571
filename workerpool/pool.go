// Package workerpool is the execution substrate: a fixed number of slots
// that run one job each, in a goroutine (WorkerThread) or a re-executed
// subprocess (WorkerProcess), reporting progress/result/exception back to
// the scheduler over a mailbox and honoring cooperative cancellation.
package workerpool

import (
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/checkpoint"
	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/bravo1goingdark/jobengine/messaging"
)

// WorkerType selects the execution substrate for every slot in a Pool.
type WorkerType int

const (
	// WorkerThread runs each job in a goroutine within this process.
	WorkerThread WorkerType = iota
	// WorkerProcess runs each job in a re-executed subprocess, isolating
	// user code's memory and crashes from the engine.
	WorkerProcess
)

type running struct {
	cancelOnce sync.Once
	cancel     chan struct{}
}

// Pool owns a fixed number of execution slots, draining START_JOB /
// CANCEL_JOB messages from its incoming mailbox and emitting JOB_STARTED /
// JOB_UPDATED / JOB_COMPLETED / JOB_FAILED / SLOT_AVAILABLE onto its
// outgoing mailbox.
type Pool struct {
	bus      *messaging.Backend
	incoming string
	outgoing string
	slots    int
	workerType WorkerType
	log      logger.Logger

	mu      sync.Mutex
	runningJobs map[string]*running
	started bool

	quit chan struct{}
	wg   sync.WaitGroup

	pollInterval time.Duration
	checkpoints  *checkpoint.Store
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithPollInterval overrides the default mailbox-poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) { p.pollInterval = d }
}

// WithCheckpoints attaches a checkpoint.Store that PROCESS-mode workers
// save progress to as it arrives, so a crashed worker's WorkerDied report
// can include the last progress observed before the child died.
func WithCheckpoints(store *checkpoint.Store) Option {
	return func(p *Pool) { p.checkpoints = store }
}

// NewPool constructs a Pool with the given number of slots, listening on
// incoming and emitting onto outgoing.
func NewPool(bus *messaging.Backend, incoming, outgoing string, slots int, wt WorkerType, log logger.Logger, opts ...Option) *Pool {
	if slots < 1 {
		slots = 1
	}
	p := &Pool{
		bus:          bus,
		incoming:     incoming,
		outgoing:     outgoing,
		slots:        slots,
		workerType:   wt,
		log:          log,
		runningJobs:  make(map[string]*running),
		quit:         make(chan struct{}),
		pollInterval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins consuming the incoming mailbox. Safe to call once.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.dispatchLoop()
}

func (p *Pool) freeSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots - len(p.runningJobs)
}

func (p *Pool) dispatchLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			p.drainIncoming()
		}
	}
}

// drainIncoming handles only the messages already queued when it starts, so
// a START_JOB that startJob pushes back waits for the next tick.
func (p *Pool) drainIncoming() {
	for n := p.bus.Len(p.incoming); n > 0; n-- {
		msg, ok := p.bus.Pop(p.incoming)
		if !ok {
			return
		}
		p.handle(msg)
	}
}

func (p *Pool) handle(msg messaging.Message) {
	switch msg.Type {
	case messaging.StartJob:
		var payload messaging.StartJobPayload
		if err := messaging.Decode(msg, &payload); err != nil {
			p.log.Errorf("workerpool: malformed START_JOB payload: %v", err)
			return
		}
		p.startJob(payload)
	case messaging.CancelJob:
		var payload messaging.CancelJobPayload
		if err := messaging.Decode(msg, &payload); err != nil {
			p.log.Errorf("workerpool: malformed CANCEL_JOB payload: %v", err)
			return
		}
		p.cancelJob(payload.JobID)
	default:
		// Any other message type reaching the pool's incoming mailbox is
		// a programmer error: the scheduler must never send anything but
		// these two. Engine-internal invariant violations must crash.
		panic("workerpool: unknown message type " + string(msg.Type))
	}
}

func (p *Pool) startJob(payload messaging.StartJobPayload) {
	p.mu.Lock()
	if len(p.runningJobs) >= p.slots {
		p.mu.Unlock()
		// No free slot: push back onto our own incoming mailbox for the
		// next tick. This only happens if the scheduler's slot
		// accounting (driven by our SLOT_AVAILABLE messages) is stale.
		p.log.Warnf("workerpool: no free slot for job %s, requeuing", payload.JobID)
		p.bus.Send(p.incoming, messaging.NewStartJob(payload))
		return
	}
	r := &running{cancel: make(chan struct{})}
	p.runningJobs[payload.JobID] = r
	p.mu.Unlock()

	p.bus.Send(p.outgoing, messaging.NewJobStarted(payload.JobID))

	p.wg.Add(1)
	switch p.workerType {
	case WorkerProcess:
		go p.runProcess(payload, r)
	default:
		go p.runThread(payload, r)
	}
}

func (p *Pool) cancelJob(jobID string) {
	p.mu.Lock()
	r, ok := p.runningJobs[jobID]
	p.mu.Unlock()
	if !ok {
		return // already finished, or never started on this pool instance
	}
	r.cancelOnce.Do(func() { close(r.cancel) })
}

// finishJob releases jobID's slot, sends the terminal message the
// scheduler's update loop is waiting on, then announces the free slot.
func (p *Pool) finishJob(jobID string, terminal messaging.Message) {
	defer p.wg.Done()
	p.mu.Lock()
	delete(p.runningJobs, jobID)
	free := p.slots - len(p.runningJobs)
	p.mu.Unlock()

	if p.checkpoints != nil {
		_ = p.checkpoints.Delete(jobID)
	}

	p.bus.Send(p.outgoing, terminal)
	p.bus.Send(p.outgoing, messaging.NewSlotAvailable(free))
}

// Shutdown stops accepting new jobs. If wait is true it blocks until every
// running job reaches a terminal state; otherwise it signals cancel to
// every running job and returns promptly without waiting for them to
// actually stop (cancellation remains cooperative).
func (p *Pool) Shutdown(wait bool) {
	close(p.quit)

	if wait {
		p.wg.Wait()
		return
	}

	p.mu.Lock()
	handles := make([]*running, 0, len(p.runningJobs))
	for _, r := range p.runningJobs {
		handles = append(handles, r)
	}
	p.mu.Unlock()

	for _, r := range handles {
		r.cancelOnce.Do(func() { close(r.cancel) })
	}
}
