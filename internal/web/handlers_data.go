package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/spendcheck/internal/store"
)

// handleListRuns returns the state of every live run.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.manager.List()})
}

// handleGetRun returns the state projection of one run. With ?rows=true the
// current row data is included.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("rows") != "true" {
		writeJSON(w, http.StatusOK, sess.State())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": sess.State(),
		"rows":  sess.Rows(),
	})
}

// handleDeleteRun discards a run and frees its slot.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(chi.URLParam(r, "runID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleViolations returns the violations of the last validation pass.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": sess.Violations()})
}

// handleArtifact streams one artifact of a completed run.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	a, err := sess.Artifact(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data := a.Bytes()
	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+a.Name+"\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleListArchive returns archived runs, most recently finished first.
func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	runs, err := s.archive.ListRuns(r.Context(), parseIntParam(r, "limit", store.DefaultListLimit))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetArchive returns one archived run.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	run, err := s.archive.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
