package core

// ledger.go implements the fix ledger: the open fix requests of one run, the
// rows waiting for a later batch, the skip records, and the waiting clock.
//
// The ledger owns no status. Session operations call into it and then decide
// the status transition from IsEmpty. The clock restarts whenever a batch is
// opened and whenever a fix or skip leaves requests open, so the countdown
// measures time since the last user activity.

import (
	"slices"
	"time"
)

// DefaultFixWindow is how long open requests wait before auto-skip.
const DefaultFixWindow = 30 * time.Second

// DefaultFixBatchSize is how many violating rows are presented at once.
const DefaultFixBatchSize = 5

// Skip reasons recorded on SkipRecord.
const (
	SkipReasonUser    = "user"
	SkipReasonTimeout = "timeout"
)

// FixLedger tracks outstanding fix requests and their timing.
type FixLedger struct {
	window time.Duration

	open    []FixRequest
	backlog []FixRequest

	skipped   map[int]SkipRecord
	skipOrder []int

	waitingSince time.Time
	firedFor     time.Time
}

// NewFixLedger creates an empty ledger with the given countdown window.
func NewFixLedger(window time.Duration) *FixLedger {
	if window <= 0 {
		window = DefaultFixWindow
	}
	return &FixLedger{
		window:  window,
		skipped: make(map[int]SkipRecord),
	}
}

// Window returns the countdown window.
func (l *FixLedger) Window() time.Duration { return l.window }

// IsEmpty reports whether no requests are open.
func (l *FixLedger) IsEmpty() bool { return len(l.open) == 0 }

// Len returns the number of open requests.
func (l *FixLedger) Len() int { return len(l.open) }

// Open returns a copy of the open requests in presentation order.
func (l *FixLedger) Open() []FixRequest { return slices.Clone(l.open) }

// BacklogRows returns the number of distinct rows waiting for a later batch.
func (l *FixLedger) BacklogRows() int { return len(distinctRows(l.backlog)) }

// WaitingSince returns the start of the current window; zero when idle.
func (l *FixLedger) WaitingSince() time.Time { return l.waitingSince }

// IsSkipped reports whether a row was skipped during this run.
func (l *FixLedger) IsSkipped(row int) bool {
	_, ok := l.skipped[row]
	return ok
}

// SkipRecords returns skip records in the order rows were skipped.
func (l *FixLedger) SkipRecords() []SkipRecord {
	out := make([]SkipRecord, 0, len(l.skipOrder))
	for _, r := range l.skipOrder {
		out = append(out, l.skipped[r])
	}
	return out
}

// SkippedRows returns skipped row indices in ascending order.
func (l *FixLedger) SkippedRows() []int {
	return slices.Sorted(slices.Values(l.skipOrder))
}

// OpenBatch replaces the open set and backlog with a freshly validated batch
// and restarts the clock. Requests are expected to be unique by cell.
func (l *FixLedger) OpenBatch(batch, backlog []FixRequest, now time.Time) {
	l.open = slices.Clone(batch)
	l.backlog = slices.Clone(backlog)
	if len(l.open) > 0 {
		l.restart(now)
	} else {
		l.stop()
	}
}

// Add opens a single request. A request for a cell that is already open
// replaces it in place. Returns true when an existing request was replaced.
func (l *FixLedger) Add(req FixRequest, now time.Time) bool {
	defer l.restart(now)
	for i, cur := range l.open {
		if cur.key() == req.key() {
			l.open[i] = req
			return true
		}
	}
	l.open = append(l.open, req)
	return false
}

// Resolve removes the request for one cell. Returns whether one was open.
func (l *FixLedger) Resolve(row int, field string, now time.Time) bool {
	k := cellKey{row: row, field: field}
	i := slices.IndexFunc(l.open, func(f FixRequest) bool { return f.key() == k })
	if i < 0 {
		return false
	}
	l.open = slices.Delete(l.open, i, i+1)
	l.afterChange(now)
	return true
}

// SkipRow clears every open and backlogged request for row and records the
// skip. Returns the cleared requests; none means nothing was pending.
func (l *FixLedger) SkipRow(row int, reason string, now time.Time) []FixRequest {
	var cleared []FixRequest
	keep := func(list []FixRequest) []FixRequest {
		return slices.DeleteFunc(list, func(f FixRequest) bool {
			if f.RowIndex == row {
				cleared = append(cleared, f)
				return true
			}
			return false
		})
	}
	l.open = keep(l.open)
	l.backlog = keep(l.backlog)
	if len(cleared) == 0 {
		return nil
	}
	l.recordSkip(row, cleared, reason)
	l.afterChange(now)
	return cleared
}

// SkipAll clears every open and backlogged request, recording a skip for
// each affected row. Returns the skipped rows in ascending order.
func (l *FixLedger) SkipAll(reason string) []int {
	all := append(slices.Clone(l.open), l.backlog...)
	if len(all) == 0 {
		return nil
	}
	byRow := make(map[int][]FixRequest)
	for _, f := range all {
		byRow[f.RowIndex] = append(byRow[f.RowIndex], f)
	}
	rows := distinctRows(all)
	for _, r := range rows {
		l.recordSkip(r, byRow[r], reason)
	}
	l.open = nil
	l.backlog = nil
	l.stop()
	return rows
}

// Countdown returns window - (now - waitingSince), floored at zero.
// Returns zero when no window is running.
func (l *FixLedger) Countdown(now time.Time) time.Duration {
	if l.waitingSince.IsZero() {
		return 0
	}
	remaining := l.window - now.Sub(l.waitingSince)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the current window has run out with requests
// still open and has not already fired.
func (l *FixLedger) Expired(now time.Time) bool {
	if l.IsEmpty() || l.waitingSince.IsZero() {
		return false
	}
	if l.firedFor.Equal(l.waitingSince) {
		return false
	}
	return l.Countdown(now) == 0
}

// markFired records that the current window produced its auto-skip.
func (l *FixLedger) markFired() { l.firedFor = l.waitingSince }

func (l *FixLedger) recordSkip(row int, reqs []FixRequest, reason string) {
	rec, exists := l.skipped[row]
	if !exists {
		rec = SkipRecord{RowIndex: row, Reason: reason}
		l.skipOrder = append(l.skipOrder, row)
	}
	for _, f := range reqs {
		if !slices.Contains(rec.Messages, f.ErrorMessage) {
			rec.Messages = append(rec.Messages, f.ErrorMessage)
		}
	}
	l.skipped[row] = rec
}

func (l *FixLedger) afterChange(now time.Time) {
	if l.IsEmpty() {
		l.stop()
		return
	}
	l.restart(now)
}

func (l *FixLedger) restart(now time.Time) { l.waitingSince = now }

func (l *FixLedger) stop() { l.waitingSince = time.Time{} }

// distinctRows returns the distinct row indices of reqs in ascending order.
func distinctRows(reqs []FixRequest) []int {
	seen := make(map[int]struct{}, len(reqs))
	var rows []int
	for _, f := range reqs {
		if _, ok := seen[f.RowIndex]; !ok {
			seen[f.RowIndex] = struct{}{}
			rows = append(rows, f.RowIndex)
		}
	}
	slices.Sort(rows)
	return rows
}
