// Package catalog serves the vehicle, zone and policy data the dialogue
// engine consults. Data comes from a YAML dataset held in memory or from a
// SQLite database seeded with the same dataset.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"zonegate/internal/resolver"
	"zonegate/internal/types"
)

// DefaultFleet is the fleet returned for sessions without a fleet of their own.
const DefaultFleet = "default"

//go:embed dataset.yaml
var defaultDatasetYAML []byte

// Dataset is the full reference data set.
type Dataset struct {
	Fleets   map[string][]types.Car `yaml:"fleets"`
	Zones    []types.Zone           `yaml:"zones"`
	Policies []types.Policy         `yaml:"policies"`
}

// DefaultDataset returns the built-in dataset.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultDatasetYAML)
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// LoadDataset reads a dataset file. An empty path yields the built-in dataset.
func LoadDataset(path string) (*Dataset, error) {
	if path == "" {
		return DefaultDataset()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Validate checks identifiers are present and unique and that every policy
// belongs to a known zone.
func (d *Dataset) Validate() error {
	var errs []string
	plates := make(map[string]string)
	for _, fleet := range d.FleetNames() {
		cars := d.Fleets[fleet]
		ids := make(map[string]bool)
		for i, c := range cars {
			if c.ID == "" || c.Plate == "" {
				errs = append(errs, fmt.Sprintf("fleet %s: car %d needs id and plate", fleet, i))
				continue
			}
			if ids[c.ID] {
				errs = append(errs, fmt.Sprintf("fleet %s: duplicate car id %s", fleet, c.ID))
			}
			ids[c.ID] = true
			key := resolver.Normalize(c.Plate)
			if prev, ok := plates[key]; ok && prev != c.ID {
				errs = append(errs, fmt.Sprintf("plate %s used by %s and %s", c.Plate, prev, c.ID))
			}
			plates[key] = c.ID
			if c.EmissionClass < 0 {
				errs = append(errs, fmt.Sprintf("car %s: negative emission class", c.ID))
			}
		}
	}

	zones := make(map[string]bool)
	for i, z := range d.Zones {
		switch {
		case z.ID == "" || z.City == "":
			errs = append(errs, fmt.Sprintf("zone %d needs id and city", i))
			continue
		case zones[z.ID]:
			errs = append(errs, fmt.Sprintf("duplicate zone id %s", z.ID))
		case z.Type != types.ZoneLEZ && z.Type != types.ZoneZEZ:
			errs = append(errs, fmt.Sprintf("zone %s: unknown type %q", z.ID, z.Type))
		}
		zones[z.ID] = true
	}

	policies := make(map[string]bool)
	for _, p := range d.Policies {
		if !zones[p.ZoneID] {
			errs = append(errs, fmt.Sprintf("policy for unknown zone %q", p.ZoneID))
		}
		if policies[p.ZoneID] {
			errs = append(errs, fmt.Sprintf("duplicate policy for zone %s", p.ZoneID))
		}
		policies[p.ZoneID] = true
		for j, r := range p.Rules {
			if r.Condition == "" {
				errs = append(errs, fmt.Sprintf("policy %s: rule %d has no condition", p.ZoneID, j))
			}
			if r.MaxEmissionClass < 0 {
				errs = append(errs, fmt.Sprintf("policy %s: rule %d has negative max_emission_class", p.ZoneID, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid dataset:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// FleetNames returns the fleet names, default fleet first and the rest sorted.
func (d *Dataset) FleetNames() []string {
	names := make([]string, 0, len(d.Fleets))
	for name := range d.Fleets {
		if name != DefaultFleet {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := d.Fleets[DefaultFleet]; ok {
		names = append([]string{DefaultFleet}, names...)
	}
	return names
}
