package perception

import (
	"fmt"
	"strings"
)

// ValidationError reports model output that does not match the expected shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Attempt records one failed model call.
type Attempt struct {
	Profile string
	Repair  bool
	Err     error
}

// GenerationError is returned when the primary and fallback profiles both
// failed to produce a valid response.
type GenerationError struct {
	Op       string
	Attempts []Attempt
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generation failed for %s after %d attempt(s)", e.Op, len(e.Attempts))
	if last := e.Last(); last != nil {
		fmt.Fprintf(&b, ": %v", last)
	}
	return b.String()
}

// Unwrap exposes the last underlying error.
func (e *GenerationError) Unwrap() error { return e.Last() }

// Last returns the most recent failure, or nil.
func (e *GenerationError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *GenerationError) record(profile string, repair bool, err error) {
	e.Attempts = append(e.Attempts, Attempt{Profile: profile, Repair: repair, Err: err})
}
