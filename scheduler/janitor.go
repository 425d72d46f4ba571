package scheduler

import (
	"github.com/bravo1goingdark/jobengine/logger"
	"github.com/bravo1goingdark/jobengine/storage"
	"github.com/robfig/cron/v3"
)

// Janitor periodically clears terminal-state jobs from storage on a cron
// schedule, the same cron.Cron engine the teacher project drives its
// recurring email jobs with. It never force-clears: a non-terminal job is
// never touched regardless of how long it has been running.
type Janitor struct {
	cron  *cron.Cron
	store storage.Backend
	log   logger.Logger
}

// NewJanitor builds a Janitor that clears terminal jobs on spec, a standard
// five-field cron expression (e.g. "0 */6 * * *") or a descriptor such as
// "@every 1h".
func NewJanitor(store storage.Backend, spec string, log logger.Logger) (*Janitor, error) {
	j := &Janitor{cron: cron.New(), store: store, log: log}
	if _, err := j.cron.AddFunc(spec, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) sweep() {
	if err := j.store.Clear(false); err != nil {
		j.log.Errorf("janitor: clear terminal jobs: %v", err)
	}
}

// Start begins the cron engine in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the cron engine, waiting for any in-flight sweep to finish.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }
