package types

import (
	"encoding/json"
	"fmt"
)

// Allowed is the tri-state verdict of a decision.
type Allowed string

const (
	AllowedYes     Allowed = "true"
	AllowedNo      Allowed = "false"
	AllowedUnknown Allowed = "unknown"
)

// MarshalJSON renders true/false as booleans and unknown as null.
func (a Allowed) MarshalJSON() ([]byte, error) {
	switch a {
	case AllowedYes:
		return []byte("true"), nil
	case AllowedNo:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (a *Allowed) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("allowed: %w", err)
	}
	switch {
	case v == nil:
		*a = AllowedUnknown
	case *v:
		*a = AllowedYes
	default:
		*a = AllowedNo
	}
	return nil
}

// ReasonCode explains which branch of the decision procedure produced the verdict.
type ReasonCode string

const (
	ReasonMissingVehicleData    ReasonCode = "MISSING_VEHICLE_DATA"
	ReasonPolicyNotYetEffective ReasonCode = "POLICY_NOT_YET_EFFECTIVE"
	ReasonZeroEmissionExempt    ReasonCode = "ZERO_EMISSION_EXEMPT"
	ReasonBannedByPolicy        ReasonCode = "BANNED_BY_POLICY"
	ReasonMeetsRequirements     ReasonCode = "MEETS_REQUIREMENTS"
)

// Decision is the deterministic verdict for one car against one policy.
type Decision struct {
	Allowed       Allowed    `json:"allowed"`
	ReasonCode    ReasonCode `json:"reason_code"`
	Factors       []string   `json:"factors,omitempty"`
	MissingFields []string   `json:"missing_fields,omitempty"`
	NextActions   []string   `json:"next_actions,omitempty"`
}

// FleetDecision pairs a decision with the car it was computed for.
type FleetDecision struct {
	CarID    string   `json:"car_id"`
	Plate    string   `json:"plate"`
	Decision Decision `json:"decision"`
}
