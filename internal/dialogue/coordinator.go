package dialogue

import (
	"context"
	"fmt"

	"zonegate/internal/logging"
	"zonegate/internal/types"
)

// QuestionMaker phrases clarifying questions.
type QuestionMaker interface {
	MakeDisambiguationQuestion(ctx context.Context, kind types.PendingType, options []types.Option, lang string) (string, error)
}

// Coordinator turns an ambiguous resolution into a paused turn and resumes it
// from the user's selection.
type Coordinator struct {
	questions QuestionMaker
}

// NewCoordinator creates a coordinator.
func NewCoordinator(questions QuestionMaker) *Coordinator {
	return &Coordinator{questions: questions}
}

// resumeStage is where the router continues after a selection.
func resumeStage(kind types.PendingType) Stage {
	switch kind {
	case types.PendingCar:
		return StageResolveZone
	case types.PendingZone:
		return StageFetchPolicy
	}
	return StageNone
}

// Pause stores options and the clarifying question on state and ends the
// current run. NextStep records where the selection resumes; the pending
// question is what halts the router. The caller must already have put the candidate entities on
// state (Cars or ZoneCandidates) so Resume can find them by id.
func (c *Coordinator) Pause(ctx context.Context, state *TurnState, kind types.PendingType, options []types.Option) error {
	resumeAt := resumeStage(kind)
	if resumeAt == StageNone {
		return fmt.Errorf("cannot pause for %q", kind)
	}
	if len(options) < 2 {
		return fmt.Errorf("pause for %s needs at least two options, got %d", kind, len(options))
	}

	indexed := make([]types.Option, len(options))
	for i, o := range options {
		o.Index = i
		indexed[i] = o
	}

	question, err := c.questions.MakeDisambiguationQuestion(ctx, kind, indexed, state.Language)
	if err != nil {
		return err
	}

	state.PendingQuestion = true
	state.PendingType = kind
	state.DisambiguationOptions = indexed
	state.Reply = question
	state.NextStep = resumeAt

	logging.Routing("session %s paused for %s selection (%d options)", state.SessionID, kind, len(indexed))
	return nil
}

// Resume applies a selection. On any error state is left exactly as it was.
func (c *Coordinator) Resume(state *TurnState, index int) (Stage, error) {
	if !state.PendingQuestion {
		return StageNone, &ValidationError{Field: "selection_index", Message: "no question is pending", Err: ErrNoPendingQuestion}
	}
	if index < 0 || index >= len(state.DisambiguationOptions) {
		return StageNone, &ValidationError{
			Field:   "selection_index",
			Message: fmt.Sprintf("must be between 0 and %d, got %d", len(state.DisambiguationOptions)-1, index),
		}
	}
	opt := state.DisambiguationOptions[index]

	switch state.PendingType {
	case types.PendingCar:
		car, ok := findCar(state.Cars, opt.EntityID)
		if !ok {
			return StageNone, &ValidationError{Field: "selection_index", Message: "selected car is no longer available"}
		}
		state.SelectedCar = &car
		state.CarIdentifier = car.Plate
	case types.PendingZone:
		zone, ok := findZone(state.ZoneCandidates, opt.EntityID)
		if !ok {
			return StageNone, &ValidationError{Field: "selection_index", Message: "selected zone is no longer available"}
		}
		state.SetZone(&zone)
	default:
		return StageNone, &ValidationError{Field: "pending_type", Message: fmt.Sprintf("unknown pending type %q", state.PendingType)}
	}

	resumeAt := state.NextStep
	if !resumeAt.Valid() || resumeAt == StageEnd {
		resumeAt = resumeStage(state.PendingType)
	}
	logging.Routing("session %s resumed with option %d (%s) at %s", state.SessionID, index, opt.Label, resumeAt)

	state.ClearPending()
	state.Reply = ""
	state.NextStep = resumeAt
	return resumeAt, nil
}

func carOptions(cars []types.Car) []types.Option {
	out := make([]types.Option, len(cars))
	for i, c := range cars {
		out[i] = types.Option{Index: i, Label: c.Label(), EntityID: c.ID}
	}
	return out
}

func zoneOptions(zones []types.Zone) []types.Option {
	out := make([]types.Option, len(zones))
	for i, z := range zones {
		out[i] = types.Option{Index: i, Label: z.Label(), EntityID: z.ID}
	}
	return out
}

func findCar(cars []types.Car, id string) (types.Car, bool) {
	for _, c := range cars {
		if c.ID == id {
			return c, true
		}
	}
	return types.Car{}, false
}

func findZone(zones []types.Zone, id string) (types.Zone, bool) {
	for _, z := range zones {
		if z.ID == id {
			return z, true
		}
	}
	return types.Zone{}, false
}
