// Package statusserver exposes live run counters over HTTP while traffic runs.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/frolic/frolicsim/internal/stats"
)

type StatsSource interface {
	Snapshot() stats.Snapshot
}

// RunSource reports scheduler progress. *scheduler.Scheduler satisfies it.
type RunSource interface {
	InFlight() int64
	Launched() int64
	Wave() int64
}

type Options struct {
	RunID  string
	Policy string
	Stats  StatsSource
	Run    RunSource
	Logger *zap.Logger
}

type Server struct {
	opts    Options
	started time.Time
	log     *zap.Logger
	srv     *http.Server
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{opts: opts, started: time.Now(), log: log.With(zap.String("component", "statusserver"))}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/run", s.handleRun)
	return r
}

// Start binds addr and serves in the background. Bind errors are returned.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.srv = &http.Server{Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server stopped", zap.Error(err))
		}
	}()
	s.log.Info("status server listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Stats == nil {
		respondError(w, http.StatusServiceUnavailable, "stats not available")
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Stats.Snapshot())
}

type runStatus struct {
	RunID     string  `json:"run_id"`
	Policy    string  `json:"policy"`
	InFlight  int64   `json:"in_flight"`
	Launched  int64   `json:"launched"`
	Wave      int64   `json:"wave,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	status := runStatus{
		RunID:     s.opts.RunID,
		Policy:    s.opts.Policy,
		ElapsedMs: float64(time.Since(s.started)) / float64(time.Millisecond),
	}
	if s.opts.Run != nil {
		status.InFlight = s.opts.Run.InFlight()
		status.Launched = s.opts.Run.Launched()
		status.Wave = s.opts.Run.Wave()
	}
	respondJSON(w, http.StatusOK, status)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
