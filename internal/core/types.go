package core

import (
	"time"
)

// Column names the rule catalogue reads.
const (
	FieldEmployeeID = "employee_id"
	FieldDept       = "dept"
	FieldAmount     = "amount"
	FieldCurrency   = "currency"
	FieldSpendDate  = "spend_date"
	FieldVendor     = "vendor"
	FieldFxRate     = "fx_rate"
)

// RuleFields lists the columns validation reads. Transforms may not
// overwrite them once a run has been validated.
var RuleFields = []string{FieldEmployeeID, FieldDept, FieldAmount, FieldCurrency, FieldSpendDate, FieldVendor, FieldFxRate}

// Output columns added by packaging. Ingestion drops them so that a
// re-uploaded rejected sheet starts clean.
const (
	ColumnErrorReason      = "error_reason"
	ColumnAmountUSD        = "amount_usd"
	ColumnCostCenter       = "cost_center"
	ColumnApprovalRequired = "approval_required"
)

// OutputColumns lists every column the pipeline itself produces.
var OutputColumns = []string{ColumnErrorReason, ColumnAmountUSD, ColumnCostCenter, ColumnApprovalRequired}

// Violation is a single rule failure on one field of one row.
type Violation struct {
	RowIndex int    `json:"row_index"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// FixRequest is an open invitation to supply a corrected value for one cell.
// (RowIndex, Field) is unique within a ledger.
type FixRequest struct {
	RowIndex     int    `json:"row_index"`
	Field        string `json:"field"`
	CurrentValue string `json:"current_value"`
	ErrorMessage string `json:"error_message"`
}

// cellKey identifies a FixRequest within the ledger.
type cellKey struct {
	row   int
	field string
}

func (f FixRequest) key() cellKey { return cellKey{row: f.RowIndex, field: f.Field} }

// SkipRecord remembers why a row was skipped so the rejected artifact can
// explain it even if the row later stops violating.
type SkipRecord struct {
	RowIndex int      `json:"row_index"`
	Messages []string `json:"messages"`
	Reason   string   `json:"reason"` // "user" or "timeout"
}

// Artifact is an immutable serialized output of a completed run.
type Artifact struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Rows     int    `json:"rows"`
	data     []byte
}

// Bytes returns a copy of the artifact contents.
func (a Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Size returns the artifact length in bytes.
func (a Artifact) Size() int { return len(a.data) }

// ValidationReport is the summary returned by Session.Validate.
type ValidationReport struct {
	TotalRows      int `json:"total_rows"`
	ValidRowCount  int `json:"valid_row_count"`
	ViolationCount int `json:"violation_count"`
	ErrorRowCount  int `json:"error_row_count"`
	OpenedRequests int `json:"opened_requests"`
	BacklogRows    int `json:"backlog_rows"`
}

// FixResult describes the outcome of a fix or skip.
type FixResult struct {
	RowIndex  int    `json:"row_index"`
	Field     string `json:"field,omitempty"`
	OldValue  any    `json:"old_value,omitempty"`
	NewValue  any    `json:"new_value,omitempty"`
	Remaining int    `json:"remaining_fixes"`
	Status    Status `json:"status"`
	Applied   bool   `json:"applied"`
}

// TransformResult describes a completed transform.
type TransformResult struct {
	Column    string `json:"column"`
	RowCount  int    `json:"row_count"`
	RowErrors int    `json:"row_errors"`
	NewColumn bool   `json:"new_column"`
}

// PackageResult describes a completed packaging step.
type PackageResult struct {
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Artifacts     []string `json:"artifacts"`
}

// StateView is the read-only projection handed to transport and display
// collaborators. It never aliases session internals.
type StateView struct {
	RunID            string       `json:"run_id"`
	FileName         string       `json:"file_name,omitempty"`
	Status           Status       `json:"status"`
	RowCount         int          `json:"row_count"`
	ColumnCount      int          `json:"column_count"`
	Columns          []string     `json:"columns"`
	PendingFixes     []FixRequest `json:"pending_fixes"`
	BacklogRows      int          `json:"backlog_rows"`
	ErrorRowCount    int          `json:"total_error_rows"`
	SkippedRows      []int        `json:"skipped_rows"`
	Artifacts        []string     `json:"artifacts"`
	WaitingSince     *time.Time   `json:"waiting_since,omitempty"`
	CountdownSeconds int          `json:"countdown_seconds"`
	Validated        bool         `json:"validated"`
	Error            string       `json:"error,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}
