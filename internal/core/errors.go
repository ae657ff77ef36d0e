package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when an operation is invoked in a
	// status that does not permit it. No state is changed.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrRunNotFound is returned by the Manager for unknown run ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrTooManyRuns is returned when the live-run limit is reached.
	ErrTooManyRuns = errors.New("too many active runs, please try again later")

	// ErrPendingFixes is returned by Package while fix requests are open.
	ErrPendingFixes = errors.New("pending fixes must be resolved before packaging")

	// ErrArtifactNotFound is returned for unknown artifact names.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// InputError reports missing or malformed caller input (for example an empty
// row store). Pipeline status is left unchanged.
type InputError struct {
	Op  string
	Msg string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Msg)
}

// RangeError reports a row index outside the row store. No mutation is
// performed when it is returned.
type RangeError struct {
	Op       string
	RowIndex int
	Rows     int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: row index %d out of range [0, %d)", e.Op, e.RowIndex, e.Rows)
}

// UnrecoverableError wraps a failure that left the run inconsistent. The
// session moves to FAILED when one is produced.
type UnrecoverableError struct {
	Op  string
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("%s: unrecoverable: %v", e.Op, e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// TransitionError carries the rejected edge of the status graph.
type TransitionError struct {
	Op   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %v from %s to %s", e.Op, ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

func inputErr(op, format string, args ...any) error {
	return &InputError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsRangeError reports whether err is (or wraps) a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// IsUnrecoverable reports whether err is (or wraps) an UnrecoverableError.
func IsUnrecoverable(err error) bool {
	var ue *UnrecoverableError
	return errors.As(err, &ue)
}
