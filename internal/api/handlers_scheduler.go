package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/govworks/foia/internal/scheduler"
)

func (s *Server) schedulerAvailable(w http.ResponseWriter) bool {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler is not enabled")
		return false
	}
	return true
}

func (s *Server) listScheduledJobs(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerAvailable(w) {
		return
	}

	respondJSON(w, http.StatusOK, s.scheduler.Jobs())
}

func (s *Server) runScheduledJobNow(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerAvailable(w) {
		return
	}

	id := chi.URLParam(r, "jobID")
	if err := s.scheduler.RunJobNow(id); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "scheduler_error", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"jobId":  id,
	})
}

func (s *Server) getJobExecutions(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerAvailable(w) {
		return
	}

	id := chi.URLParam(r, "jobID")
	execs, err := s.scheduler.Executions(r.Context(), id, queryInt(r.URL.Query(), "limit", 20))
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Job not found")
			return
		}
		s.logger.Error("listing job executions", "job_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to list executions")
		return
	}

	respondJSON(w, http.StatusOK, execs)
}
