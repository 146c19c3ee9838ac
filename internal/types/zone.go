package types

import (
	"fmt"
	"time"
)

// ZoneType distinguishes low-emission from zero-emission zones.
type ZoneType string

const (
	ZoneLEZ ZoneType = "LEZ"
	ZoneZEZ ZoneType = "ZEZ"
)

// Zone is a city area with entry restrictions.
type Zone struct {
	ID   string   `json:"id" yaml:"id"`
	City string   `json:"city" yaml:"city"`
	Name string   `json:"name" yaml:"name"`
	Type ZoneType `json:"type" yaml:"type"`
}

// Label renders the zone for a disambiguation option.
func (z Zone) Label() string {
	return fmt.Sprintf("%s (%s)", z.Name, z.Type)
}

// Rule is a structured ban condition. Every non-zero field constrains one
// vehicle attribute; a car is banned by the rule when all constraints hold.
type Rule struct {
	ID        string `json:"id" yaml:"id"`
	Condition string `json:"condition" yaml:"condition"`

	Fuels            []FuelType        `json:"fuels,omitempty" yaml:"fuels"`
	MaxEmissionClass int               `json:"max_emission_class,omitempty" yaml:"max_emission_class"`
	Categories       []VehicleCategory `json:"vehicle_categories,omitempty" yaml:"vehicle_categories"`
	NonZeroEmission  bool              `json:"non_zero_emission,omitempty" yaml:"non_zero_emission"`
	RegisteredBefore time.Time         `json:"registered_before,omitempty" yaml:"registered_before"`
}

// Policy is the rule set that applies to one zone.
type Policy struct {
	ZoneID        string    `json:"zone_id" yaml:"zone_id"`
	City          string    `json:"city" yaml:"city"`
	ZoneName      string    `json:"zone_name" yaml:"zone_name"`
	EffectiveFrom time.Time `json:"effective_from" yaml:"effective_from"`
	Rules         []Rule    `json:"rules" yaml:"rules"`
	Exemptions    []string  `json:"exemptions,omitempty" yaml:"exemptions"`
}
