// Package resolver matches free-text references against candidate entities.
package resolver

import (
	"fmt"
	"strings"
	"unicode"

	"zonegate/internal/logging"
)

// Kind is the outcome class of a resolution.
type Kind int

const (
	NotFound Kind = iota
	Unique
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// MatchPolicy controls how a non-exact reference may still match.
type MatchPolicy int

const (
	// MatchNormalized accepts only exact matches after normalization.
	MatchNormalized MatchPolicy = iota
	// MatchSubstring additionally accepts normalized containment in either
	// direction ("123" matches "AB-123-CD").
	MatchSubstring
)

func (p MatchPolicy) String() string {
	if p == MatchSubstring {
		return "substring"
	}
	return "normalized"
}

// ParseMatchPolicy parses a config value.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normalized":
		return MatchNormalized, nil
	case "substring":
		return MatchSubstring, nil
	}
	return MatchNormalized, fmt.Errorf("unknown match policy %q", s)
}

// Result is the outcome of Resolve. Matches is empty for NotFound, has one
// element for Unique and two or more for Ambiguous, always in candidate order.
type Result[T any] struct {
	Kind    Kind
	Matches []T
}

// One returns the unique match.
func (r Result[T]) One() (T, bool) {
	var zero T
	if r.Kind != Unique {
		return zero, false
	}
	return r.Matches[0], true
}

// Normalize upper-cases s and drops everything but letters and digits, so
// "ab-123 cd" and "AB123CD" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Matches reports whether reference refers to key under policy.
func Matches(reference, key string, policy MatchPolicy) bool {
	ref, k := Normalize(reference), Normalize(key)
	if ref == "" || k == "" {
		return false
	}
	if ref == k {
		return true
	}
	if policy == MatchSubstring {
		return strings.Contains(k, ref) || strings.Contains(ref, k)
	}
	return false
}

// Resolve matches reference against candidates using keys. Each candidate may
// expose several keys (a plate and an internal id); any of them may match.
//
// An exact normalized match takes precedence over partial ones. An empty
// reference resolves to the only candidate, or to all of them as Ambiguous.
func Resolve[T any](reference string, candidates []T, keys func(T) []string, policy MatchPolicy) Result[T] {
	if len(candidates) == 0 {
		return Result[T]{Kind: NotFound}
	}

	ref := Normalize(reference)
	if ref == "" {
		return classify(candidates)
	}

	var exact, partial []T
	for _, c := range candidates {
		isExact, isPartial := false, false
		for _, k := range keys(c) {
			nk := Normalize(k)
			if nk == "" {
				continue
			}
			if nk == ref {
				isExact = true
				break
			}
			if policy == MatchSubstring && (strings.Contains(nk, ref) || strings.Contains(ref, nk)) {
				isPartial = true
			}
		}
		switch {
		case isExact:
			exact = append(exact, c)
		case isPartial:
			partial = append(partial, c)
		}
	}

	if len(exact) > 0 {
		logging.ResolverDebug("resolve %q: %d exact match(es)", reference, len(exact))
		return classify(exact)
	}
	logging.ResolverDebug("resolve %q: %d partial match(es) under %s", reference, len(partial), policy)
	if len(partial) == 0 {
		return Result[T]{Kind: NotFound}
	}
	return classify(partial)
}

func classify[T any](matches []T) Result[T] {
	switch len(matches) {
	case 0:
		return Result[T]{Kind: NotFound}
	case 1:
		return Result[T]{Kind: Unique, Matches: matches}
	default:
		out := make([]T, len(matches))
		copy(out, matches)
		return Result[T]{Kind: Ambiguous, Matches: out}
	}
}
