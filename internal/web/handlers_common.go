package web

// handlers_common.go holds helpers shared by the run handlers.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/spendcheck/internal/core"
	"github.com/JonMunkholm/spendcheck/internal/logging"
)

// decodeJSON reads a bounded JSON body into v. Numbers are kept as
// json.Number so integral cell values are not rounded through float64 twice.
// An empty body leaves v untouched.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "REQ002", "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "REQ001", "invalid request body: "+err.Error())
		return false
	}
	return true
}

// session looks up the run named by the {runID} path parameter and writes
// the error response itself when there is none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.manager.Get(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return sess, true
}

// settle archives the run if the last operation finished it. Archive
// failures are logged but do not fail the request that completed the run.
func (s *Server) settle(r *http.Request, sess *core.Session) {
	if err := s.manager.Settle(r.Context(), sess.ID()); err != nil {
		logging.ForRun(r.Context(), sess.ID()).Error("settle run failed", "error", err)
	}
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
