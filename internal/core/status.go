package core

// status.go defines the pipeline status enum and its legal-transition graph.
//
// The Machine is advisory: Session operations decide their target status and
// ask the Machine to move there. A move along an edge not in the graph is
// rejected with a TransitionError and leaves the status untouched, so the
// combined effect of all operations can never leave the graph.

import "fmt"

// Status is the pipeline status of one run.
type Status string

const (
	StatusIdle           Status = "IDLE"
	StatusUploading      Status = "UPLOADING"
	StatusIngesting      Status = "INGESTING"
	StatusRunning        Status = "RUNNING"
	StatusValidating     Status = "VALIDATING"
	StatusWaitingForUser Status = "WAITING_FOR_USER"
	StatusFixing         Status = "FIXING"
	StatusTransforming   Status = "TRANSFORMING"
	StatusPackaging      Status = "PACKAGING"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
)

// transitions is the legal-transition graph. FAILED is reachable from every
// non-terminal status and is handled separately in CanTransition.
var transitions = map[Status][]Status{
	StatusIdle:           {StatusUploading, StatusIngesting},
	StatusUploading:      {StatusIngesting},
	StatusIngesting:      {StatusRunning},
	StatusRunning:        {StatusValidating},
	StatusValidating:     {StatusWaitingForUser, StatusTransforming},
	StatusWaitingForUser: {StatusFixing, StatusRunning},
	StatusFixing:         {StatusRunning, StatusWaitingForUser},
	StatusTransforming:   {StatusPackaging},
	StatusPackaging:      {StatusCompleted},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsWaiting reports whether the run is parked on the fix ledger.
func (s Status) IsWaiting() bool {
	return s == StatusWaitingForUser || s == StatusFixing
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCompleted || s == StatusFailed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the graph.
// Staying in the same non-terminal status is always allowed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to || to == StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine holds the current status of one run.
type Machine struct {
	status  Status
	history []Status
}

// NewMachine returns a machine in IDLE.
func NewMachine() *Machine {
	return &Machine{status: StatusIdle, history: []Status{StatusIdle}}
}

// Status returns the current status.
func (m *Machine) Status() Status { return m.status }

// History returns every status the machine has entered, in order.
func (m *Machine) History() []Status {
	out := make([]Status, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to the target status or returns a TransitionError.
func (m *Machine) Transition(op string, to Status) error {
	if !CanTransition(m.status, to) {
		return &TransitionError{Op: op, From: m.status, To: to}
	}
	if m.status != to {
		m.status = to
		m.history = append(m.history, to)
	}
	return nil
}

// Require returns an error wrapping ErrIllegalTransition unless the current
// status is one of allowed.
func (m *Machine) Require(op string, allowed ...Status) error {
	for _, s := range allowed {
		if m.status == s {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: status %s does not allow this operation", op, ErrIllegalTransition, m.status)
}
