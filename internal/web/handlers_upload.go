package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/spendcheck/internal/core"
	"github.com/JonMunkholm/spendcheck/internal/logging"
)

// createRunRequest carries already-decoded rows. Columns fixes the column
// order; keys that only appear in rows are appended after it.
type createRunRequest struct {
	FileName string           `json:"file_name"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

type createRunResponse struct {
	RunID    string         `json:"run_id"`
	Ingested int            `json:"ingested"`
	State    core.StateView `json:"state"`
}

// handleCreateRun creates a run and ingests the rows of the request body.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Rows == nil {
		writeError(w, r, http.StatusBadRequest, "REQ003", "rows are required")
		return
	}
	s.createAndIngest(w, r, req.FileName, req.Columns, req.Rows)
}

// handleUploadSheet creates a run from a multipart .csv or .xlsx upload in
// the "file" field.
func (s *Server) handleUploadSheet(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, core.MaxSheetBytes)
	if err := r.ParseMultipartForm(core.MaxSheetBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "REQ002", "file too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "REQ001", "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "REQ003", "no file provided")
		return
	}
	defer file.Close()

	columns, rows, err := core.DecodeSheet(header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.createAndIngest(w, r, header.Filename, columns, rows)
}

func (s *Server) createAndIngest(w http.ResponseWriter, r *http.Request, fileName string, columns []string, rows []map[string]any) {
	ctx := withRequestMetadata(r.Context(), r)
	sess, err := s.manager.Create(ctx, fileName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	n, err := sess.Ingest(columns, rows)
	if err != nil {
		s.settle(r, sess)
		s.respondError(w, r, err)
		return
	}

	logging.ForRun(ctx, sess.ID()).Info("run ingested", "rows", n, "file", fileName)
	writeJSON(w, http.StatusCreated, createRunResponse{
		RunID:    sess.ID(),
		Ingested: n,
		State:    sess.State(),
	})
}
