package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/bravo1goingdark/jobengine/logger"
)

// Snapshot is what /status and /status/stream serve: every known job at a
// point in time.
type Snapshot struct {
	Jobs   []types.Job `json:"jobs"`
	SentAt time.Time   `json:"sent_at"`
}

// Server exposes a Reporter's job state over HTTP. /status returns the
// current snapshot; /status/stream holds the connection open and pushes a
// fresh snapshot on every Broadcast call, the same clients-map fan-out
// shape the teacher's campaign dashboard used for its event stream.
type Server struct {
	reporter Reporter
	log      logger.Logger

	srv *http.Server

	mu      sync.Mutex
	clients map[chan Snapshot]bool
}

// NewServer builds a monitor.Server bound to addr, reading job state from
// reporter.
func NewServer(addr string, reporter Reporter, log logger.Logger) *Server {
	s := &Server{
		reporter: reporter,
		log:      log,
		clients:  make(map[chan Snapshot]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStream)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. Bind failures are logged, not
// fatal: a monitor endpoint is an observability aid, never load-bearing
// for job execution.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("monitor: serve %s: %v", s.srv.Addr, err)
		}
	}()
}

// Handler returns the server's http.Handler, mainly so tests can drive it
// through httptest.Server without binding a real port.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Stop gracefully shuts the server down and disconnects every streaming
// client.
func (s *Server) Stop() error {
	s.mu.Lock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan Snapshot]bool)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Broadcast pushes a fresh snapshot to every connected stream client. Call
// it from the scheduler's terminal-state observer so streams update as
// jobs complete, not only on a client-driven poll.
func (s *Server) Broadcast() {
	snap := s.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- snap:
		default:
			delete(s.clients, ch)
			close(ch)
		}
	}
}

func (s *Server) snapshot() Snapshot {
	jobs, err := s.reporter.AllJobs()
	if err != nil {
		s.log.Errorf("monitor: list jobs: %v", err)
		jobs = nil
	}
	return Snapshot{Jobs: jobs, SentAt: time.Now()}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.clients[ch] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
	}()

	writeEvent(w, s.snapshot())
	flusher.Flush()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, snap)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}
