package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"zonegate/internal/dialogue"
	"zonegate/internal/logging"
	"zonegate/internal/types"
)

// PolicyGetter is the lookup a PolicyCache fronts.
type PolicyGetter interface {
	GetPolicy(ctx context.Context, zoneID string) (*types.Policy, error)
}

type cachedPolicy struct {
	policy    *types.Policy
	fetchedAt time.Time
}

// PolicyCache memoizes policy lookups for a fixed TTL. Concurrent misses for
// the same zone share one backend call. "No policy" answers are cached too;
// errors are not.
type PolicyCache struct {
	mu      sync.RWMutex
	backend PolicyGetter
	entries map[string]cachedPolicy
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time

	hits   int
	misses int
}

var _ dialogue.PolicySource = (*PolicyCache)(nil)

// NewPolicyCache wraps backend. A ttl of zero disables caching.
func NewPolicyCache(backend PolicyGetter, ttl time.Duration) *PolicyCache {
	return &PolicyCache{
		backend: backend,
		entries: make(map[string]cachedPolicy),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetPolicy returns a cached policy or fetches it from the backend.
func (c *PolicyCache) GetPolicy(ctx context.Context, zoneID string) (*types.Policy, error) {
	if c.ttl <= 0 {
		return c.backend.GetPolicy(ctx, zoneID)
	}

	c.mu.Lock()
	if e, ok := c.entries[zoneID]; ok && c.now().Sub(e.fetchedAt) < c.ttl {
		c.hits++
		c.mu.Unlock()
		return copyPolicy(e.policy), nil
	}
	c.misses++
	c.mu.Unlock()

	v, err, shared := c.group.Do(zoneID, func() (interface{}, error) {
		p, err := c.backend.GetPolicy(ctx, zoneID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[zoneID] = cachedPolicy{policy: p, fetchedAt: c.now()}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.CatalogDebug("policy %s: shared in-flight lookup", zoneID)
	}
	return copyPolicy(v.(*types.Policy)), nil
}

// Invalidate drops one zone from the cache.
func (c *PolicyCache) Invalidate(zoneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, zoneID)
}

// Purge empties the cache.
func (c *PolicyCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedPolicy)
	logging.CatalogDebug("policy cache purged")
}

// Stats returns hit and miss counters.
func (c *PolicyCache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func copyPolicy(p *types.Policy) *types.Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Rules = append([]types.Rule(nil), p.Rules...)
	for i := range cp.Rules {
		cp.Rules[i].Fuels = append([]types.FuelType(nil), p.Rules[i].Fuels...)
		cp.Rules[i].Categories = append([]types.VehicleCategory(nil), p.Rules[i].Categories...)
	}
	cp.Exemptions = append([]string(nil), p.Exemptions...)
	return &cp
}
