// Package types holds the domain model shared by the dialogue core and its
// collaborators: vehicles, zones, policies and decisions.
package types

import (
	"fmt"
	"time"
)

// FuelType is the propulsion of a vehicle.
type FuelType string

const (
	FuelDiesel   FuelType = "diesel"
	FuelPetrol   FuelType = "petrol"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
	FuelLPG      FuelType = "lpg"
	FuelHydrogen FuelType = "hydrogen"
)

// IsZeroEmission reports whether the fuel produces no tailpipe emissions.
func (f FuelType) IsZeroEmission() bool {
	return f == FuelElectric || f == FuelHydrogen
}

// VehicleCategory is the EU vehicle category (M1 passenger car, N1 light
// commercial, ...).
type VehicleCategory string

const (
	CategoryM1 VehicleCategory = "M1"
	CategoryM2 VehicleCategory = "M2"
	CategoryN1 VehicleCategory = "N1"
	CategoryN2 VehicleCategory = "N2"
	CategoryL  VehicleCategory = "L"
)

// Car is a registered vehicle. Empty strings, a zero EmissionClass and a zero
// FirstRegistration all mean "unknown".
type Car struct {
	ID                string          `json:"id" yaml:"id"`
	Plate             string          `json:"plate" yaml:"plate"`
	FuelType          FuelType        `json:"fuel_type,omitempty" yaml:"fuel_type"`
	EmissionClass     int             `json:"emission_class,omitempty" yaml:"emission_class"`
	Category          VehicleCategory `json:"vehicle_category,omitempty" yaml:"vehicle_category"`
	FirstRegistration time.Time       `json:"first_registration,omitempty" yaml:"first_registration"`
}

// EuroLabel renders the emission class the way registration papers do.
func (c Car) EuroLabel() string {
	if c.EmissionClass <= 0 {
		return ""
	}
	return fmt.Sprintf("euro%d", c.EmissionClass)
}

// Label is the human readable option text used when asking the user to pick
// between several cars.
func (c Car) Label() string {
	fuel := string(c.FuelType)
	if fuel == "" {
		fuel = "unknown fuel"
	}
	euro := c.EuroLabel()
	if euro == "" {
		euro = "unknown euro class"
	}
	return fmt.Sprintf("%s (%s, %s)", c.Plate, fuel, euro)
}
