package dialogue

import (
	"errors"
	"fmt"

	"zonegate/internal/types"
)

var (
	// ErrSessionNotFound is returned by Answer for a session with no stored state.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoPendingQuestion is returned by Answer when nothing is waiting for a selection.
	ErrNoPendingQuestion = errors.New("no pending question")
)

// ValidationError reports caller input the router refuses to act on. The
// stored turn is left untouched.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError ends a turn early with a user-facing message. It never
// leaves the router.
type NotFoundError struct {
	Entity    string
	Reference string
	Message   string
}

func (e *NotFoundError) Error() string {
	if e.Reference == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s not found: %q", e.Entity, e.Reference)
}

// AmbiguousMatch hands a multi-candidate resolution to the coordinator. It
// is control flow, not a failure.
type AmbiguousMatch struct {
	Kind    types.PendingType
	Options []types.Option
}

func (e *AmbiguousMatch) Error() string {
	return fmt.Sprintf("ambiguous %s reference (%d options)", e.Kind, len(e.Options))
}

// RoutingInvariantViolation means the transition logic misbehaved: the stage
// ceiling was hit or a stage asked for a transition the table forbids. Dump
// is a JSON snapshot of the turn state at the point of failure.
type RoutingInvariantViolation struct {
	Steps  int
	Stage  Stage
	Next   Stage
	Reason string
	Dump   string
}

func (e *RoutingInvariantViolation) Error() string {
	return fmt.Sprintf("routing invariant violated at %s after %d step(s): %s", e.Stage, e.Steps, e.Reason)
}
