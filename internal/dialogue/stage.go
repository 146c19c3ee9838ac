package dialogue

import (
	"fmt"
	"sort"
)

// Stage is one step of the turn state machine.
type Stage string

const (
	StageNone          Stage = ""
	StageExtractIntent Stage = "extract_intent"
	StageResolveCar    Stage = "resolve_car"
	StageResolveZone   Stage = "resolve_zone"
	StageFetchPolicy   Stage = "fetch_policy"
	StageDecide        Stage = "decide"
	StageExplain       Stage = "explain"
	StageEnd           Stage = "end"
)

// AllStages lists every stage in canonical order.
var AllStages = []Stage{
	StageExtractIntent,
	StageResolveCar,
	StageResolveZone,
	StageFetchPolicy,
	StageDecide,
	StageExplain,
	StageEnd,
}

// Valid reports whether s is a known stage. StageNone is not valid.
func (s Stage) Valid() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	if s == StageNone {
		return "<none>"
	}
	return string(s)
}

// ParseStage converts a stage name.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Valid() {
		return StageNone, fmt.Errorf("unknown stage %q", name)
	}
	return s, nil
}

// TransitionTable lists the permitted successors of each stage.
type TransitionTable map[Stage][]Stage

// DefaultTransitions is the canonical table. Every resolution stage may end
// the turn early (not found, pause); the rest move strictly forward.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		StageExtractIntent: {StageResolveCar, StageResolveZone, StageEnd},
		StageResolveCar:    {StageResolveZone, StageEnd},
		StageResolveZone:   {StageFetchPolicy, StageEnd},
		StageFetchPolicy:   {StageDecide, StageEnd},
		StageDecide:        {StageExplain, StageEnd},
		StageExplain:       {StageEnd},
		StageEnd:           nil,
	}
}

// Allows reports whether to is a permitted successor of from.
func (t TransitionTable) Allows(from, to Stage) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransitions checks that the table is closed over the known stages,
// that end is the only sink, and that there are no cycles. Together these
// guarantee that every walk through the table reaches end.
func ValidateTransitions(t TransitionTable) error {
	for from := range t {
		if !from.Valid() {
			return fmt.Errorf("transition table: unknown stage %q", from)
		}
	}
	for _, s := range AllStages {
		next, ok := t[s]
		if !ok {
			return fmt.Errorf("transition table: stage %s has no entry", s)
		}
		if s == StageEnd {
			if len(next) > 0 {
				return fmt.Errorf("transition table: %s must not have successors", StageEnd)
			}
			continue
		}
		if len(next) == 0 {
			return fmt.Errorf("transition table: stage %s has no successors", s)
		}
		for _, n := range next {
			if !n.Valid() {
				return fmt.Errorf("transition table: %s -> unknown stage %q", s, n)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	colour := make(map[Stage]int, len(t))
	var visit func(s Stage, path []Stage) error
	visit = func(s Stage, path []Stage) error {
		switch colour[s] {
		case grey:
			return fmt.Errorf("transition table: cycle %v -> %s", path, s)
		case black:
			return nil
		}
		colour[s] = grey
		for _, n := range t[s] {
			if err := visit(n, append(path, s)); err != nil {
				return err
			}
		}
		colour[s] = black
		return nil
	}

	starts := make([]Stage, 0, len(t))
	for s := range t {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	for _, s := range starts {
		if err := visit(s, nil); err != nil {
			return err
		}
	}
	return nil
}

// Paths enumerates every walk from start to end. Used by tooling and tests to
// show that the table is exhaustively terminating.
func (t TransitionTable) Paths(start Stage) [][]Stage {
	var out [][]Stage
	var walk func(s Stage, path []Stage)
	walk = func(s Stage, path []Stage) {
		path = append(path, s)
		if s == StageEnd {
			out = append(out, append([]Stage(nil), path...))
			return
		}
		for _, n := range t[s] {
			walk(n, path)
		}
	}
	walk(start, nil)
	return out
}
