package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/webhook"
)

func (s *Server) routes(mux *http.ServeMux, webhookHandler *webhook.Handler) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	if webhookHandler != nil {
		mux.Handle("POST /api/webhooks/memories", webhookHandler)
	}
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleGetJob returns a job's current Record (spec §6 "job status
// query"). Submission itself remains out of scope.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not configured")
		return
	}

	id := r.PathValue("id")
	record, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleMetrics exposes the in-memory metrics recorder's current
// snapshot for scraping. Purely observational; absent recorder yields
// an empty snapshot rather than an error.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
