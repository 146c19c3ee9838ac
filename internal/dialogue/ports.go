package dialogue

import (
	"context"

	"zonegate/internal/perception"
	"zonegate/internal/types"
)

// VehicleSource supplies the cars known to a session.
type VehicleSource interface {
	ListCars(ctx context.Context, sessionID string) ([]types.Car, error)
	// FindCar looks a car up outside the session fleet. It returns nil, nil
	// when nothing matches.
	FindCar(ctx context.Context, identifier string) (*types.Car, error)
}

// ZoneSource supplies the zones of a city, narrowed by a free-text phrase.
type ZoneSource interface {
	ResolveZoneCandidates(ctx context.Context, city, phrase string) ([]types.Zone, error)
}

// PolicySource supplies zone policies. It returns nil, nil for a zone with
// no published policy.
type PolicySource interface {
	GetPolicy(ctx context.Context, zoneID string) (*types.Policy, error)
}

// SessionStore persists turn state between turns. Load returns nil, nil for
// an unknown session.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*TurnState, error)
	Save(ctx context.Context, sessionID string, state *TurnState) error
}

// Gateway is the language model surface the router needs.
type Gateway interface {
	DetectLanguage(ctx context.Context, message string) (string, error)
	ExtractIntent(ctx context.Context, message string) (types.Slots, error)
	MakeDisambiguationQuestion(ctx context.Context, kind types.PendingType, options []types.Option, lang string) (string, error)
	ComposeExplanation(ctx context.Context, req perception.ExplainRequest) (string, error)
	Translate(ctx context.Context, message, lang string) (string, error)
}

// Decider computes eligibility verdicts.
type Decider interface {
	Decide(car types.Car, policy types.Policy) types.Decision
	DecideFleet(cars []types.Car, policy types.Policy) []types.FleetDecision
}

var _ Gateway = (*perception.Gateway)(nil)
