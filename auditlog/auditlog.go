// Package auditlog appends a CSV row for every job reaching a terminal
// state, generalized from logger.LogSuccess/LogFailure's per-email CSV
// append into a single job-outcome ledger.
package auditlog

import (
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/pkg/errors"
)

// Logger appends one CSV row per terminal job: job_id, status, exception,
// updated_at. The file is opened once and kept open for the Logger's
// lifetime rather than reopened per write, unlike the teacher's
// open-per-call helper, since a long-running engine writes far more often
// than the one-shot CLI it was grounded on.
type Logger struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// New opens (creating if necessary) the CSV file at path in append mode.
func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "auditlog: open %q", path)
	}
	return &Logger{f: f, w: csv.NewWriter(f)}, nil
}

// Record appends one row for job. Only terminal states are meaningful
// here; callers are expected to call it only from a terminal-state
// observer (see scheduler.WithOnTerminal).
func (l *Logger) Record(job types.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		job.ID,
		string(job.State),
		job.Exception,
		job.UpdatedAt.Format(time.RFC3339),
	}
	if err := l.w.Write(row); err != nil {
		return errors.Wrap(err, "auditlog: write row")
	}
	l.w.Flush()
	return errors.Wrap(l.w.Error(), "auditlog: flush")
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	return l.f.Close()
}
