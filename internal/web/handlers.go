package web

import (
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/spendcheck/internal/web/templates"
)

// handleHealth reports liveness and live-run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   s.manager.LimiterStatus(),
	})
}

// handleRunsPage renders the list of live runs.
func (s *Server) handleRunsPage(w http.ResponseWriter, r *http.Request) {
	templ.Handler(templates.RunsPage(s.manager.List())).ServeHTTP(w, r)
}

// handleRunPage renders the status card of one run.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	templ.Handler(templates.RunPage(sess.State())).ServeHTTP(w, r)
}
