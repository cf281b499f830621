// Package statusserver implements the optional status HTTP server exposing
// live run progress and /metrics, grounded on the teacher's
// internal/api.Server route-registration idiom (mux.NewRouter(),
// HandleFunc, json.NewEncoder(w).Encode), reimplemented against this
// module's run-progress state instead of the teacher's repository catalog.
package statusserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Progress is the live, mutable run-progress state the server exposes.
type Progress struct {
	mu sync.RWMutex

	StartedAt      time.Time
	TermsPlanned   int
	TermsCompleted int
	TermsFailed    int
	CurrentTerms   map[string]bool
}

// NewProgress creates an empty progress tracker for a run of termsPlanned
// terms.
func NewProgress(termsPlanned int) *Progress {
	return &Progress{
		StartedAt:    time.Now(),
		TermsPlanned: termsPlanned,
		CurrentTerms: make(map[string]bool),
	}
}

// StartTerm marks term as in-flight.
func (p *Progress) StartTerm(term string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentTerms[term] = true
}

// FinishTerm marks term as no longer in-flight and records its outcome.
func (p *Progress) FinishTerm(term string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.CurrentTerms, term)
	if success {
		p.TermsCompleted++
	} else {
		p.TermsFailed++
	}
}

func (p *Progress) snapshot() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	inFlight := make([]string, 0, len(p.CurrentTerms))
	for term := range p.CurrentTerms {
		inFlight = append(inFlight, term)
	}
	return map[string]any{
		"started_at":      p.StartedAt.Format(time.RFC3339),
		"elapsed_seconds": time.Since(p.StartedAt).Seconds(),
		"terms_planned":   p.TermsPlanned,
		"terms_completed": p.TermsCompleted,
		"terms_failed":    p.TermsFailed,
		"terms_in_flight": inFlight,
	}
}

// Server exposes /health, /status, and /metrics over HTTP.
type Server struct {
	addr     string
	progress *Progress
	router   *mux.Router
	log      zerolog.Logger
}

// New builds a status server bound to addr (e.g. ":9092"), reporting on
// progress.
func New(addr string, progress *Progress, log zerolog.Logger) *Server {
	s := &Server{addr: addr, progress: progress, router: mux.NewRouter(), log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.progress.snapshot())
}

// ListenAndServe starts the server, blocking until it errors.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("status server listening")
	return http.ListenAndServe(s.addr, s.router)
}
