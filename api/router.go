package api

import (
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"timeshare-deals/metrics"
)

// NewRouter wires every endpoint of the deals API.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/deals", s.listDeals).Methods("GET")
	api.HandleFunc("/summary", s.getSummary).Methods("GET")
	api.HandleFunc("/runs", s.listRuns).Methods("GET")
	api.HandleFunc("/stats", s.getStats).Methods("GET")
	api.HandleFunc("/reference-fees", s.listReferenceFees).Methods("GET")
	api.HandleFunc("/reference-fees", s.importReferenceFees).Methods("POST")
	api.HandleFunc("/scrape/{source}", s.startScrape).Methods("POST")

	return r
}

// Handler wraps the router with access logging and panic recovery.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.NewRouter())
	return handlers.CombinedLoggingHandler(accessLog, recovered)
}
