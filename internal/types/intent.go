package types

import "fmt"

// Intent is what the user is asking about.
type Intent string

const (
	IntentSingleCar  Intent = "single_car"
	IntentFleet      Intent = "fleet"
	IntentPolicyOnly Intent = "policy_only"
)

// ParseIntent validates a classifier label.
func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentSingleCar, IntentFleet, IntentPolicyOnly:
		return Intent(s), nil
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

// Slots are the values extracted from a single user message.
type Slots struct {
	Intent        Intent `json:"intent"`
	CarIdentifier string `json:"car_identifier,omitempty"`
	City          string `json:"city,omitempty"`
	ZonePhrase    string `json:"zone_phrase,omitempty"`
}

// PendingType names the entity a clarifying question is about.
type PendingType string

const (
	PendingNone PendingType = ""
	PendingCar  PendingType = "car"
	PendingZone PendingType = "zone"
)

// Option is one numbered choice offered to the user.
type Option struct {
	Index    int    `json:"index"`
	Label    string `json:"label"`
	EntityID string `json:"entity_id"`
}
