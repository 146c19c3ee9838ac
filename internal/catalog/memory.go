package catalog

import (
	"context"
	"strings"
	"sync"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/resolver"
	"zonegate/internal/types"
)

// MemoryCatalog serves a Dataset from memory. The dataset can be swapped at
// runtime with Replace, which is what the file watcher does on change.
type MemoryCatalog struct {
	mu       sync.RWMutex
	ds       *Dataset
	policies map[string]types.Policy
	plates   map[string]types.Car
}

var (
	_ dialogue.VehicleSource = (*MemoryCatalog)(nil)
	_ dialogue.ZoneSource    = (*MemoryCatalog)(nil)
	_ dialogue.PolicySource  = (*MemoryCatalog)(nil)
)

// NewMemoryCatalog creates a catalog over ds.
func NewMemoryCatalog(ds *Dataset) *MemoryCatalog {
	c := &MemoryCatalog{}
	c.Replace(ds)
	return c
}

// Replace swaps the served dataset.
func (c *MemoryCatalog) Replace(ds *Dataset) {
	if ds == nil {
		ds = &Dataset{}
	}
	policies := make(map[string]types.Policy, len(ds.Policies))
	for _, p := range ds.Policies {
		policies[p.ZoneID] = p
	}
	plates := make(map[string]types.Car)
	for _, name := range ds.FleetNames() {
		for _, car := range ds.Fleets[name] {
			for _, key := range []string{car.Plate, car.ID} {
				k := resolver.Normalize(key)
				if _, dup := plates[k]; !dup {
					plates[k] = car
				}
			}
		}
	}

	c.mu.Lock()
	c.ds = ds
	c.policies = policies
	c.plates = plates
	c.mu.Unlock()
	logging.CatalogDebug("catalog loaded: %d fleet(s), %d zone(s), %d polic(ies)",
		len(ds.Fleets), len(ds.Zones), len(ds.Policies))
}

// Dataset returns the dataset currently served.
func (c *MemoryCatalog) Dataset() *Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ds
}

// ListCars returns the fleet named after the session, or the default fleet.
func (c *MemoryCatalog) ListCars(_ context.Context, sessionID string) ([]types.Car, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cars, ok := c.ds.Fleets[sessionID]
	if !ok {
		cars = c.ds.Fleets[DefaultFleet]
	}
	return append([]types.Car(nil), cars...), nil
}

// FindCar looks a car up by plate or id across every fleet.
func (c *MemoryCatalog) FindCar(_ context.Context, identifier string) (*types.Car, error) {
	key := resolver.Normalize(identifier)
	if key == "" {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	car, ok := c.plates[key]
	if !ok {
		return nil, nil
	}
	return &car, nil
}

// ResolveZoneCandidates returns the zones of city narrowed by phrase, in
// dataset order.
func (c *MemoryCatalog) ResolveZoneCandidates(_ context.Context, city, phrase string) ([]types.Zone, error) {
	city = strings.TrimSpace(city)
	c.mu.RLock()
	var inCity []types.Zone
	for _, z := range c.ds.Zones {
		if strings.EqualFold(z.City, city) {
			inCity = append(inCity, z)
		}
	}
	c.mu.RUnlock()
	return FilterZones(inCity, phrase), nil
}

// GetPolicy returns the policy of a zone, or nil when none is published.
func (c *MemoryCatalog) GetPolicy(_ context.Context, zoneID string) (*types.Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[zoneID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
