// Package checkpoint persists the last-seen progress of long-running jobs
// to a single file, atomically rewritten on every save exactly like
// offset.Tracker's temp-file-then-rename pattern. It lets a PROCESS-mode
// worker that crashes mid-job report the last known progress instead of
// losing it outright.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Entry is the last progress reported for one job.
type Entry struct {
	Progress float64 `json:"progress"`
	Total    float64 `json:"total"`
	Stage    string  `json:"stage,omitempty"`
}

// Store is a job_id -> Entry map mirrored to a single file. All mutations
// go through an atomic rename so a crash never leaves a half-written file
// behind.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// Open loads path if it exists (a missing file means no checkpoints yet,
// not an error) and returns a Store backed by it.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrapf(err, "checkpoint: read %q", path)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, errors.Wrapf(err, "checkpoint: decode %q", path)
	}
	return s, nil
}

// Save records jobID's latest progress and persists the whole map via an
// atomic rename.
func (s *Store) Save(jobID string, progress, total float64, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jobID] = Entry{Progress: progress, Total: total, Stage: stage}
	return s.persistLocked()
}

// Load returns jobID's last recorded progress, if any.
func (s *Store) Load(jobID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobID]
	return e, ok
}

// Delete removes jobID's checkpoint, called once the job reaches a
// terminal state and its progress no longer needs recovering.
func (s *Store) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jobID]; !ok {
		return nil
	}
	delete(s.entries, jobID)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return errors.Wrap(err, "checkpoint: marshal")
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "checkpoint: mkdir")
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "checkpoint: create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "checkpoint: write temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "checkpoint: sync temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "checkpoint: rename temp file")
	}
	return nil
}
