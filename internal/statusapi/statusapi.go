// Package statusapi serves a read-only HTTP view of the job table.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nixpig/jobshell/internal/jobmanager"
)

// JobLister provides snapshots of tracked jobs.
type JobLister interface {
	Jobs() []jobmanager.Job
	Job(n int) (jobmanager.Job, error)
}

type handler struct {
	jobs   JobLister
	logger *slog.Logger
}

// NewHandler returns an http.Handler serving:
//
//	GET /jobs          every tracked job
//	GET /jobs/{number} a single job by job number
func NewHandler(jobs JobLister, logger *slog.Logger) http.Handler {
	h := &handler{jobs: jobs, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/jobs", h.listJobs)
	r.Get("/jobs/{number}", h.getJob)

	return r
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.jobs.Jobs())
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		http.Error(w, "invalid job number", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Job(number)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", "err", err)
	}
}
