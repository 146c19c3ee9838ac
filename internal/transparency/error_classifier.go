package transparency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"zonegate/internal/dialogue"
	"zonegate/internal/perception"
)

// ErrorCategory classifies errors for callers and operators.
type ErrorCategory int

const (
	// ErrorCategoryValidation indicates input the engine refused.
	ErrorCategoryValidation ErrorCategory = iota

	// ErrorCategoryNotFound indicates an unknown session.
	ErrorCategoryNotFound

	// ErrorCategoryGeneration indicates the language model could not produce
	// a valid answer on any profile.
	ErrorCategoryGeneration

	// ErrorCategoryRouting indicates a broken routing invariant.
	ErrorCategoryRouting

	// ErrorCategoryTimeout indicates the request ran out of time.
	ErrorCategoryTimeout

	// ErrorCategoryUnknown is the fallback for unclassified errors.
	ErrorCategoryUnknown
)

// Prefix returns the display prefix for this error category.
func (c ErrorCategory) Prefix() string {
	prefixes := []string{
		"[INPUT]",
		"[SESSION]",
		"[LLM]",
		"[ROUTING]",
		"[TIMEOUT]",
		"[ERROR]",
	}
	if int(c) < len(prefixes) {
		return prefixes[c]
	}
	return "[ERROR]"
}

// String returns the category name.
func (c ErrorCategory) String() string {
	names := []string{
		"validation",
		"not_found",
		"generation",
		"routing",
		"timeout",
		"unknown",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// ClassifiedError wraps an error with classification and remediation.
type ClassifiedError struct {
	Original    error
	Category    ErrorCategory
	Status      int
	Summary     string
	Remediation []string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return ce.Format()
}

// Unwrap returns the original error for errors.Is/As compatibility.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// Format returns a readable message with remediation.
func (ce *ClassifiedError) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n\n", ce.Category.Prefix(), ce.Summary))
	sb.WriteString(fmt.Sprintf("Details: %s\n", ce.Original.Error()))
	if len(ce.Remediation) > 0 {
		sb.WriteString("\nSuggested fixes:\n")
		for _, r := range ce.Remediation {
			sb.WriteString(fmt.Sprintf("  - %s\n", r))
		}
	}
	return sb.String()
}

// ClassifyError maps err to a category and HTTP status. Typed errors are
// matched with errors.As; generation failures are checked first because they
// wrap the last attempt's error.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	ce := &ClassifiedError{
		Original: err,
		Category: ErrorCategoryUnknown,
		Status:   http.StatusInternalServerError,
		Summary:  "An unexpected error occurred",
	}

	var (
		genErr   *perception.GenerationError
		valErr   *dialogue.ValidationError
		routeErr *dialogue.RoutingInvariantViolation
	)
	switch {
	case errors.As(err, &genErr):
		ce.Category = ErrorCategoryGeneration
		ce.Status = http.StatusBadGateway
		ce.Summary = "The language model could not answer"
		ce.Remediation = []string{
			"Check the API key and model configuration",
			"Retry the message in a few moments",
		}

	case errors.Is(err, dialogue.ErrSessionNotFound):
		ce.Category = ErrorCategoryNotFound
		ce.Status = http.StatusNotFound
		ce.Summary = "Unknown or expired session"
		ce.Remediation = []string{"Start a new conversation with /chat"}

	case errors.As(err, &valErr):
		ce.Category = ErrorCategoryValidation
		ce.Status = http.StatusBadRequest
		ce.Summary = "The request was rejected"
		if errors.Is(err, dialogue.ErrNoPendingQuestion) {
			ce.Remediation = []string{"Send a normal message; there is no question to answer"}
		} else {
			ce.Remediation = []string{"Check the request fields and option index"}
		}

	case errors.As(err, &routeErr):
		ce.Category = ErrorCategoryRouting
		ce.Status = http.StatusInternalServerError
		ce.Summary = "The dialogue engine stopped on an internal invariant"
		ce.Remediation = []string{
			"Run `zonegate validate` to check the transition table",
			"Look up the trace id under /traces for the stage history",
		}

	case errors.Is(err, context.DeadlineExceeded):
		ce.Category = ErrorCategoryTimeout
		ce.Status = http.StatusGatewayTimeout
		ce.Summary = "Operation timed out"
		ce.Remediation = []string{"Try again in a few moments"}
	}

	return ce
}
