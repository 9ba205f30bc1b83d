package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxRunsLimit caps the runs listing page size.
const maxRunsLimit = 500

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"store":  s.service.StoreDriver(),
		"runs":   s.service.Limiter().Status(),
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListDatasets())
}

// handleRun runs the pipeline synchronously and returns the run result.
// A run that started and failed still returns its partial result.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	res, err := s.service.Run(r.Context(), dataset)
	if err != nil {
		s.respondRunError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	dataset := chi.URLParam(r, "dataset")

	path, rows, err := s.service.Export(r.Context(), dataset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": dataset,
		"path":    path,
		"rows":    rows,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunFiles(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if _, err := s.history.GetRun(r.Context(), runID); err != nil {
		s.respondError(w, r, err)
		return
	}
	files, err := s.history.RunFiles(r.Context(), runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
