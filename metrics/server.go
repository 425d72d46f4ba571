package metrics

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"time"
)

// Logger is the minimal interface the metrics server logs through.
type Logger interface {
	Errorf(format string, args ...any)
}

// Server serves /metrics (expvar) and /healthz for an Engine's Registry.
type Server struct {
	*Registry
	srv *http.Server
	log Logger
}

// NewServer builds a Server bound to addr (e.g. ":9090"). Start must be
// called to actually begin listening.
func NewServer(addr string, log Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		Registry: NewRegistry(),
		srv:      &http.Server{Addr: addr, Handler: mux},
		log:      log,
	}
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

// Start begins serving in a background goroutine; a bind failure is
// reported through the logger rather than crashing the engine, since
// metrics are observability, not a load-bearing dependency.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("metrics: server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Errorf("metrics: shutdown: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
