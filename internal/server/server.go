// Package server exposes the sync pipeline and settlement reversal over a
// small JSON API. Statement retrieval itself stays with external
// collaborators; they POST the raw payloads here.
package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/ledgersync-dev/ledgersync/internal/recon"
	"github.com/ledgersync-dev/ledgersync/internal/store"
)

// Server routes HTTP requests to the reconciliation core.
type Server struct {
	store  store.Store
	runner *recon.Runner
	router *mux.Router

	mu      sync.Mutex
	batches map[string]recon.Summary
}

// New creates a Server with all routes registered.
func New(st store.Store, runner *recon.Runner) *Server {
	s := &Server{
		store:   st,
		runner:  runner,
		batches: make(map[string]recon.Summary),
	}

	r := mux.NewRouter().StrictSlash(true)
	r.Use(jsonContentType)
	r.HandleFunc("/v1/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/v1/records/{id:[0-9]+}/reverse", s.handleReverse).Methods(http.MethodPost)
	r.HandleFunc("/v1/batches/{id}", s.handleBatch).Methods(http.MethodGet)
	s.router = r

	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) rememberBatch(summary recon.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[summary.BatchID] = summary
}

func (s *Server) batch(id string) (recon.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.batches[id]
	return summary, ok
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
