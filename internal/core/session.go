package core

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// SessionOptions configures a Session. Zero values select the defaults.
type SessionOptions struct {
	Clock        func() time.Time
	Rules        *RuleSet
	FixWindow    time.Duration
	FixBatchSize int
	Format       ArtifactFormat
	Derivations  *StandardDerivations
	Logger       *slog.Logger
}

// Session is one validation run. It exclusively owns its row store, fix
// ledger and status machine; every exported method takes the session lock,
// so operations on one run never interleave.
//
// Operations invoked in a status that does not allow them return an error
// wrapping ErrIllegalTransition and change nothing. Two calls are no-ops
// instead: SkipAll on an empty ledger, and SkipRow on a row with no pending
// requests.
type Session struct {
	mu sync.Mutex

	id        string
	fileName  string
	createdAt time.Time

	now       func() time.Time
	rules     RuleSet
	batchSize int
	format    ArtifactFormat
	derive    StandardDerivations
	log       *slog.Logger

	machine    *Machine
	store      *RowStore
	ledger     *FixLedger
	violations []Violation
	validated  bool
	asOf       string

	artifacts []Artifact
	result    *PackageResult
	failure   error
}

// NewSession creates a run in IDLE.
func NewSession(id string, opts SessionOptions) *Session {
	s := &Session{
		id:        id,
		now:       opts.Clock,
		batchSize: opts.FixBatchSize,
		format:    opts.Format,
		log:       opts.Logger,
		machine:   NewMachine(),
		ledger:    NewFixLedger(opts.FixWindow),
		store:     NewRowStore(nil, nil),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Rules != nil {
		s.rules = *opts.Rules
	} else {
		s.rules = DefaultRules()
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultFixBatchSize
	}
	if s.format == "" {
		s.format = FormatXLSX
	}
	if opts.Derivations != nil {
		s.derive = *opts.Derivations
	} else {
		s.derive = DefaultStandardDerivations()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("run_id", id)
	s.createdAt = s.now()
	return s
}

// ID returns the run identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current pipeline status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Status()
}

// BeginUpload records the uploaded file name and moves IDLE -> UPLOADING.
func (s *Session) BeginUpload(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Require("begin upload", StatusIdle); err != nil {
		return err
	}
	if err := s.machine.Transition("begin upload", StatusUploading); err != nil {
		return err
	}
	s.fileName = strings.TrimSpace(fileName)
	s.log.Info("upload started", "file", s.fileName)
	return nil
}

// Ingest populates the row store from already-decoded rows and moves to
// RUNNING. Pipeline output columns present in the input are dropped.
// Returns the number of rows loaded.
func (s *Session) Ingest(columns []string, rows []map[string]any) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "ingest"
	if err := s.machine.Require(op, StatusIdle, StatusUploading); err != nil {
		return 0, err
	}
	if err := s.machine.Transition(op, StatusIngesting); err != nil {
		return 0, err
	}
	defer s.recoverTo(op, &err)

	columns, rows = stripColumns(columns, rows, OutputColumns)
	s.store = NewRowStore(columns, rows)

	if err := s.machine.Transition(op, StatusRunning); err != nil {
		return 0, s.fail(op, err)
	}
	s.log.Info("rows ingested", "rows", s.store.Len(), "columns", s.store.Schema().Len())
	return s.store.Len(), nil
}

// Validate runs the rule catalogue over the whole store. When rows violate
// and are not skipped, the first batch of them is opened in the fix ledger
// and the run waits for the user; otherwise it stays in VALIDATING, from
// where it may be transformed or packaged.
//
// asOf is the reference date for the future-date rule (YYYY-MM-DD); blank
// or malformed values fall back to the session clock.
func (s *Session) Validate(asOf string) (ValidationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "validate"
	if err := s.machine.Require(op, StatusRunning, StatusValidating); err != nil {
		return ValidationReport{}, err
	}
	if s.store.Len() == 0 {
		return ValidationReport{}, inputErr(op, "no data loaded")
	}
	return s.validate(op, asOf)
}

// validate runs one validation pass and opens the next fix batch. The
// caller holds the lock and has checked that the status allows it.
func (s *Session) validate(op, asOf string) (ValidationReport, error) {
	if err := s.machine.Transition(op, StatusValidating); err != nil {
		return ValidationReport{}, err
	}

	now := s.now()
	s.violations = s.rules.Validate(s.store.view(), ParseReferenceDate(asOf, now))
	s.validated = true
	s.asOf = asOf

	batch, backlog := s.buildRequests()
	s.ledger.OpenBatch(batch, backlog, now)

	report := ValidationReport{
		TotalRows:      s.store.Len(),
		ViolationCount: len(s.violations),
		ErrorRowCount:  ErrorRowCount(s.violations),
		OpenedRequests: len(batch),
		BacklogRows:    s.ledger.BacklogRows(),
	}
	report.ValidRowCount = report.TotalRows - len(s.rejectedRows())

	if len(batch) > 0 {
		if err := s.machine.Transition(op, StatusWaitingForUser); err != nil {
			return report, err
		}
	}

	s.log.Info("validation complete",
		"rows", report.TotalRows,
		"violations", report.ViolationCount,
		"error_rows", report.ErrorRowCount,
		"opened", report.OpenedRequests,
		"backlog_rows", report.BacklogRows,
	)
	return report, nil
}

// buildRequests turns the current violations of non-skipped rows into fix
// requests, one per cell. Two violations on one cell share a request with
// both messages. The first batchSize rows form the batch.
func (s *Session) buildRequests() (batch, backlog []FixRequest) {
	var order []cellKey
	merged := make(map[cellKey]*FixRequest)
	for _, v := range s.violations {
		if s.ledger.IsSkipped(v.RowIndex) {
			continue
		}
		k := cellKey{row: v.RowIndex, field: v.Field}
		if req, ok := merged[k]; ok {
			req.ErrorMessage += "; " + v.Message
			continue
		}
		row, _ := s.store.Row(v.RowIndex)
		merged[k] = &FixRequest{
			RowIndex:     v.RowIndex,
			Field:        v.Field,
			CurrentValue: row.String(v.Field),
			ErrorMessage: v.Message,
		}
		order = append(order, k)
	}

	rowsSeen := 0
	lastRow := -1
	for _, k := range order {
		if k.row != lastRow {
			rowsSeen++
			lastRow = k.row
		}
		if rowsSeen <= s.batchSize {
			batch = append(batch, *merged[k])
		} else {
			backlog = append(backlog, *merged[k])
		}
	}
	return batch, backlog
}

// OpenRequest opens a fix request for one cell outside of validation. A
// request for a cell that is already open replaces it. A blank current value
// is filled from the store.
func (s *Session) OpenRequest(req FixRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "open request"
	if err := s.machine.Require(op, StatusValidating, StatusWaitingForUser, StatusFixing); err != nil {
		return err
	}
	if err := s.checkCell(op, req.RowIndex, req.Field); err != nil {
		return err
	}
	req.Field = strings.TrimSpace(req.Field)
	if req.CurrentValue == "" {
		row, _ := s.store.Row(req.RowIndex)
		req.CurrentValue = row.String(req.Field)
	}
	if err := s.machine.Transition(op, StatusWaitingForUser); err != nil {
		return err
	}
	replaced := s.ledger.Add(req, s.now())
	s.log.Info("fix request opened", "row", req.RowIndex, "field", req.Field, "replaced", replaced)
	return nil
}

// ApplyFix overwrites one cell and resolves its request. The run returns to
// RUNNING when no requests remain and stays in FIXING otherwise.
func (s *Session) ApplyFix(row int, field string, value any) (FixResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "apply fix"
	if err := s.machine.Require(op, StatusWaitingForUser, StatusFixing); err != nil {
		return FixResult{}, err
	}
	if err := s.checkCell(op, row, field); err != nil {
		return FixResult{}, err
	}
	res, err := s.applyFix(op, row, field, value)
	if err != nil {
		return FixResult{}, err
	}
	if err := s.settle(op); err != nil {
		return FixResult{}, err
	}
	res.Remaining = s.ledger.Len()
	res.Status = s.machine.Status()
	return res, nil
}

// ApplyBatch applies several corrections to one row, in field-name order,
// as consecutive fixes. Every field is checked before any cell changes.
func (s *Session) ApplyBatch(row int, values map[string]any) ([]FixResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "apply batch"
	if err := s.machine.Require(op, StatusWaitingForUser, StatusFixing); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, inputErr(op, "no fixes supplied for row %d", row)
	}
	fields := make([]string, 0, len(values))
	for f := range values {
		if err := s.checkCell(op, row, f); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	sort.Strings(fields)

	results := make([]FixResult, 0, len(fields))
	for _, f := range fields {
		res, err := s.applyFix(op, row, f, values[f])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	if err := s.settle(op); err != nil {
		return results, err
	}
	for i := range results {
		results[i].Remaining = s.ledger.Len()
		results[i].Status = s.machine.Status()
	}
	return results, nil
}

func (s *Session) applyFix(op string, row int, field string, value any) (FixResult, error) {
	field = strings.TrimSpace(field)
	old, err := s.store.Set(row, field, value)
	if err != nil {
		return FixResult{}, fmt.Errorf("%s: %w", op, err)
	}
	s.ledger.Resolve(row, field, s.now())
	s.log.Info("fix applied", "row", row, "field", field)
	return FixResult{
		RowIndex: row,
		Field:    field,
		OldValue: old,
		NewValue: normalizeValue(value),
		Applied:  true,
	}, nil
}

// SkipRow clears every pending request of a row without touching its data.
// The row is rejected at packaging and never re-opened for fixing.
func (s *Session) SkipRow(row int) (FixResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "skip row"
	if err := s.machine.Require(op, StatusWaitingForUser, StatusFixing); err != nil {
		return FixResult{}, err
	}
	if !s.store.InRange(row) {
		return FixResult{}, &RangeError{Op: op, RowIndex: row, Rows: s.store.Len()}
	}

	res := FixResult{RowIndex: row}
	if cleared := s.ledger.SkipRow(row, SkipReasonUser, s.now()); len(cleared) > 0 {
		res.Applied = true
		if err := s.settle(op); err != nil {
			return FixResult{}, err
		}
		s.log.Info("row skipped", "row", row, "cleared", len(cleared))
	}
	res.Remaining = s.ledger.Len()
	res.Status = s.machine.Status()
	return res, nil
}

// SkipAll skips every open and backlogged request and returns the skipped
// rows. On an empty ledger it does nothing.
func (s *Session) SkipAll() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.skipAll("skip all", SkipReasonUser)
}

func (s *Session) skipAll(op, reason string) ([]int, error) {
	if s.ledger.IsEmpty() {
		return nil, nil
	}
	if err := s.machine.Require(op, StatusWaitingForUser, StatusFixing); err != nil {
		return nil, err
	}
	rows := s.ledger.SkipAll(reason)
	if err := s.machine.Transition(op, StatusRunning); err != nil {
		return rows, err
	}
	s.log.Info("rows skipped", "rows", len(rows), "reason", reason)
	return rows, nil
}

// Tick evaluates the fix timeout at now. When the window has run out with
// requests still open it performs one skip-all and reports true. Repeated
// ticks for the same window do nothing.
func (s *Session) Tick(now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.Status().IsWaiting() || !s.ledger.Expired(now) {
		return false, nil
	}
	s.ledger.markFired()
	s.log.Warn("fix window expired, skipping pending rows", "window", s.ledger.Window())
	if _, err := s.skipAll("timeout", SkipReasonTimeout); err != nil {
		return false, err
	}
	return true, nil
}

// Countdown returns the time left before pending requests are auto-skipped.
func (s *Session) Countdown() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Countdown(s.now())
}

// Transform adds or overwrites one derived column on every row. Columns
// read by validation and the rejection reason column are reserved.
func (s *Session) Transform(column string, d Derivation) (res TransformResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "transform"
	if err := s.machine.Require(op, StatusValidating, StatusTransforming); err != nil {
		return TransformResult{}, err
	}
	if s.store.Len() == 0 {
		return TransformResult{}, inputErr(op, "no data loaded")
	}
	column = strings.TrimSpace(column)
	if column == "" {
		return TransformResult{}, inputErr(op, "column name is required")
	}
	if slices.Contains(RuleFields, column) || column == ColumnErrorReason {
		return TransformResult{}, inputErr(op, "column %q is reserved", column)
	}
	fn, err := d.compile(s.store.Schema())
	if err != nil {
		return TransformResult{}, err
	}
	if err := s.machine.Transition(op, StatusTransforming); err != nil {
		return TransformResult{}, err
	}
	defer s.recoverTo(op, &err)

	res, err = applyTransform(s.store, column, fn)
	if err != nil {
		return res, s.fail(op, err)
	}
	s.log.Info("column derived", "column", res.Column, "rows", res.RowCount, "row_errors", res.RowErrors)
	return res, nil
}

// Package applies the standard derived columns, splits the store into
// accepted and rejected rows and serializes both. The store is read-only
// afterwards. Any failure moves the run to FAILED and exposes no artifacts.
//
// From RUNNING (after fixes or skips emptied the ledger) Package first
// re-validates with the last reference date. If that pass opens new
// requests the run waits for them and Package returns ErrPendingFixes.
func (s *Session) Package() (res PackageResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "package"
	if !s.ledger.IsEmpty() {
		return PackageResult{}, fmt.Errorf("%s: %w", op, ErrPendingFixes)
	}
	if s.machine.Status() == StatusRunning && s.validated {
		report, err := s.validate(op, s.asOf)
		if err != nil {
			return PackageResult{}, err
		}
		if report.OpenedRequests > 0 {
			return PackageResult{}, fmt.Errorf("%s: %w", op, ErrPendingFixes)
		}
	}
	if err := s.machine.Require(op, StatusValidating, StatusTransforming); err != nil {
		return PackageResult{}, err
	}
	if err := s.machine.Transition(op, StatusTransforming); err != nil {
		return PackageResult{}, err
	}
	defer s.recoverTo(op, &err)

	for _, c := range s.derive.columns() {
		if _, err := applyTransform(s.store, c.name, c.fn); err != nil {
			return PackageResult{}, s.fail(op, err)
		}
	}

	if err := s.machine.Transition(op, StatusPackaging); err != nil {
		return PackageResult{}, s.fail(op, err)
	}
	s.store.freeze()

	accepted, rejected, reasons := partition(s.store.view(), s.violations, s.ledger.SkipRecords())
	arts, err := buildArtifacts(s.format, s.store.Schema().Columns(), accepted, rejected, reasons)
	if err != nil {
		return PackageResult{}, s.fail(op, err)
	}
	if err := s.machine.Transition(op, StatusCompleted); err != nil {
		return PackageResult{}, s.fail(op, err)
	}

	s.artifacts = arts
	res = PackageResult{AcceptedCount: len(accepted), RejectedCount: len(rejected)}
	for _, a := range arts {
		res.Artifacts = append(res.Artifacts, a.Name)
	}
	s.result = &res
	s.log.Info("run packaged", "accepted", res.AcceptedCount, "rejected", res.RejectedCount)
	return res, nil
}

// Fail moves the run to FAILED. It is a no-op on a terminal run.
func (s *Session) Fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Status().IsTerminal() {
		return
	}
	_ = s.fail("fail", cause)
}

// fail records an unrecoverable error, drops any artifacts and moves to
// FAILED. It returns the error to hand back to the caller.
func (s *Session) fail(op string, cause error) error {
	err := cause
	if !IsUnrecoverable(err) {
		err = &UnrecoverableError{Op: op, Err: cause}
	}
	s.failure = err
	s.artifacts = nil
	s.result = nil
	if tErr := s.machine.Transition(op, StatusFailed); tErr != nil {
		s.log.Error("cannot enter FAILED", "error", tErr)
	}
	s.log.Error("run failed", "op", op, "error", err)
	return err
}

// recoverTo converts a panic inside op into an unrecoverable failure.
func (s *Session) recoverTo(op string, errp *error) {
	if r := recover(); r != nil {
		*errp = s.fail(op, fmt.Errorf("panic: %v", r))
	}
}

// settle moves between RUNNING and FIXING after a fix or skip.
func (s *Session) settle(op string) error {
	if s.ledger.IsEmpty() {
		return s.machine.Transition(op, StatusRunning)
	}
	return s.machine.Transition(op, StatusFixing)
}

// checkCell validates a (row, field) address without mutating anything.
func (s *Session) checkCell(op string, row int, field string) error {
	if !s.store.InRange(row) {
		return &RangeError{Op: op, RowIndex: row, Rows: s.store.Len()}
	}
	if strings.TrimSpace(field) == "" {
		return inputErr(op, "field name is required")
	}
	if s.ledger.IsSkipped(row) {
		return inputErr(op, "row %d already skipped", row)
	}
	return nil
}

// rejectedRows returns the rows that would be rejected if packaged now.
func (s *Session) rejectedRows() []int {
	set := make(map[int]struct{})
	for _, v := range s.violations {
		set[v.RowIndex] = struct{}{}
	}
	for _, r := range s.ledger.SkippedRows() {
		set[r] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// Violations returns the violations of the last validation pass.
func (s *Session) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.violations)
}

// Rows returns a snapshot of the row store as plain maps.
func (s *Session) Rows() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.store.Snapshot()
	out := make([]map[string]any, len(snap))
	for i, r := range snap {
		out[i] = r.Values()
	}
	return out
}

// Artifact returns a completed run's artifact by name.
func (s *Session) Artifact(name string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.artifacts {
		if a.Name == name {
			return a, nil
		}
	}
	return Artifact{}, fmt.Errorf("%q: %w", name, ErrArtifactNotFound)
}

// Result returns the packaging result of a completed run.
func (s *Session) Result() (PackageResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return PackageResult{}, false
	}
	return *s.result, true
}

// State returns a read-only projection of the run.
func (s *Session) State() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	v := StateView{
		RunID:            s.id,
		FileName:         s.fileName,
		Status:           s.machine.Status(),
		RowCount:         s.store.Len(),
		ColumnCount:      s.store.Schema().Len(),
		Columns:          s.store.Schema().Columns(),
		PendingFixes:     s.ledger.Open(),
		BacklogRows:      s.ledger.BacklogRows(),
		ErrorRowCount:    ErrorRowCount(s.violations),
		SkippedRows:      s.ledger.SkippedRows(),
		CountdownSeconds: int(s.ledger.Countdown(now).Round(time.Second) / time.Second),
		Validated:        s.validated,
		CreatedAt:        s.createdAt,
	}
	if ws := s.ledger.WaitingSince(); !ws.IsZero() {
		v.WaitingSince = &ws
	}
	for _, a := range s.artifacts {
		v.Artifacts = append(v.Artifacts, a.Name)
	}
	if s.failure != nil {
		v.Error = s.failure.Error()
	}
	return v
}
