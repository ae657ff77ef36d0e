package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/spendcheck/internal/core"
)

type validateRequest struct {
	AsOf string `json:"as_of"`
}

// handleValidate runs the rule catalogue and opens the first fix batch.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req validateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	report, err := sess.Validate(req.AsOf)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report": report,
		"state":  sess.State(),
	})
}

// handleOpenRequest opens a fix request for one cell.
func (s *Server) handleOpenRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req core.FixRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if err := sess.OpenRequest(req); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// answersRequest bundles user answers to open fix requests. With SkipAll
// set the other lists are ignored; otherwise they are applied in the order
// fixes, row fixes, skips.
type answersRequest struct {
	Fixes    []fixAnswer    `json:"fixes"`
	RowFixes []rowFixAnswer `json:"row_fixes"`
	SkipRows []int          `json:"skip_rows"`
	SkipAll  bool           `json:"skip_all"`
}

type fixAnswer struct {
	RowIndex int    `json:"row_index"`
	Field    string `json:"field"`
	NewValue any    `json:"new_value"`
}

type rowFixAnswer struct {
	RowIndex int            `json:"row_index"`
	Fixes    map[string]any `json:"fixes"`
}

type answersResponse struct {
	Results     []core.FixResult `json:"results"`
	SkippedRows []int            `json:"skipped_rows"`
	State       core.StateView   `json:"state"`
}

// handleAnswers applies fixes and skips. Answers are applied one at a time;
// the first failure stops the request and earlier answers stay applied.
func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req answersRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	resp := answersResponse{Results: []core.FixResult{}, SkippedRows: []int{}}
	if req.SkipAll {
		rows, err := sess.SkipAll()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		resp.SkippedRows = append(resp.SkippedRows, rows...)
	} else {
		for _, f := range req.Fixes {
			res, err := sess.ApplyFix(f.RowIndex, f.Field, f.NewValue)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			resp.Results = append(resp.Results, res)
		}
		for _, rf := range req.RowFixes {
			results, err := sess.ApplyBatch(rf.RowIndex, rf.Fixes)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			resp.Results = append(resp.Results, results...)
		}
		for _, row := range req.SkipRows {
			res, err := sess.SkipRow(row)
			if err != nil {
				s.respondError(w, r, err)
				return
			}
			resp.Results = append(resp.Results, res)
			if res.Applied {
				resp.SkippedRows = append(resp.SkippedRows, row)
			}
		}
	}

	resp.State = sess.State()
	writeJSON(w, http.StatusOK, resp)
}

// transformRequest selects exactly one derivation: a constant value, an
// arithmetic expression, or a lookup of another column.
type transformRequest struct {
	Column      string            `json:"column"`
	Value       json.RawMessage   `json:"value"`
	Expression  string            `json:"expression"`
	LookupField string            `json:"lookup_field"`
	LookupMap   map[string]string `json:"lookup_map"`
	Unmapped    *string           `json:"unmapped"`
}

func (req transformRequest) derivation() (core.Derivation, bool, error) {
	switch {
	case strings.TrimSpace(req.Expression) != "":
		return core.Expression(req.Expression), true, nil
	case strings.TrimSpace(req.LookupField) != "":
		unmapped := core.UnmappedValue
		if req.Unmapped != nil {
			unmapped = *req.Unmapped
		}
		return core.Lookup(req.LookupField, req.LookupMap, unmapped), true, nil
	case len(req.Value) > 0:
		dec := json.NewDecoder(bytes.NewReader(req.Value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return core.Derivation{}, false, err
		}
		return core.Constant(v), true, nil
	}
	return core.Derivation{}, false, nil
}

// handleTransform adds or overwrites one derived column.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req transformRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	d, ok, err := req.derivation()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "REQ001", "invalid value: "+err.Error())
		return
	}
	if !ok {
		writeError(w, r, http.StatusBadRequest, "REQ003", "one of value, expression or lookup_field is required")
		return
	}

	res, err := sess.Transform(req.Column, d)
	if err != nil {
		s.settle(r, sess)
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePackage produces the artifacts and archives the finished run.
func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	res, err := sess.Package()
	s.settle(r, sess)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"state":  sess.State(),
	})
}
