package catalog

import (
	"strings"

	"zonegate/internal/types"
)

// Phrases that address every zone of a city rather than one kind.
var allZoneWords = []string{"center", "centre", "downtown"}

var zoneTypeWords = map[types.ZoneType][]string{
	types.ZoneZEZ: {"logistic", "cargo", "zez", "zero"},
	types.ZoneLEZ: {"lez", "emission", "environmental", "low"},
}

// FilterZones narrows a city's zones by a free-text phrase. An empty or
// unrecognised phrase keeps every zone; a phrase naming a zone type keeps
// only zones of that type. ZEZ words are checked first so that
// "zero emission" does not read as LEZ.
func FilterZones(zones []types.Zone, phrase string) []types.Zone {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" || containsAny(p, allZoneWords) {
		return zones
	}
	for _, t := range []types.ZoneType{types.ZoneZEZ, types.ZoneLEZ} {
		if !containsAny(p, zoneTypeWords[t]) {
			continue
		}
		var out []types.Zone
		for _, z := range zones {
			if z.Type == t {
				out = append(out, z)
			}
		}
		return out
	}
	return zones
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
