// Package core provides the business logic for expense-sheet validation runs.
//
// This package is the heart of the service, containing all domain logic
// independent of any transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Session: one validation run. It owns the row store, the fix ledger and
//     the status machine, and exposes the pipeline operations.
//   - Manager: registers live sessions, bounds their number and archives
//     them once they finish.
//   - RuleSet: the expense rule catalogue applied by Validate.
//   - Derivation: how the transform engine computes a column.
//
// # Pipeline
//
// A run moves through the statuses in status.go:
//
//  1. [Session.Ingest] loads decoded rows (see [DecodeSheet]) and enters RUNNING
//  2. [Session.Validate] checks every row and opens the first batch of fix
//     requests; with violations the run waits for the user
//  3. [Session.ApplyFix], [Session.SkipRow] and [Session.SkipAll] answer the
//     requests; an unanswered batch is skipped by [Session.Tick] when the
//     fix window runs out
//  4. [Session.Transform] adds derived columns
//  5. [Session.Package] writes the success and errors artifacts
//
// Calls made in a status that does not allow them return an error wrapping
// [ErrIllegalTransition] and change nothing.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - RUN001-RUN003: Run errors (not found, capacity, failed)
//   - VAL001-VAL004: Validation and transform input errors
//   - FIX001-FIX003: Fix ledger errors
//   - STATE001: Operation not allowed in the current status
//   - PKG001: Artifact errors
package core
