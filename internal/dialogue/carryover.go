package dialogue

import (
	"strings"

	"zonegate/internal/resolver"
	"zonegate/internal/types"
)

// CarryContext is what the previous turn leaves behind.
type CarryContext struct {
	SelectedCar  *types.Car
	SelectedZone *types.Zone
	City         string
	ZonePhrase   string
}

// EffectiveSlots are the slots a turn actually works with once prior context
// has been applied to the extraction.
type EffectiveSlots struct {
	types.Slots
	SelectedCar  *types.Car
	SelectedZone *types.Zone
}

// carryContext extracts the carry-over material of s.
func carryContext(s *TurnState) CarryContext {
	return CarryContext{
		SelectedCar:  s.SelectedCar,
		SelectedZone: s.SelectedZone,
		City:         s.City,
		ZonePhrase:   s.ZonePhrase,
	}
}

// CarryOver decides which prior entities survive into the new turn.
//
// A carried car stays selected unless the message names a different one; while
// it stays, the turn is a single-car turn whatever the extractor said. A car
// named explicitly always means a single-car or fleet turn, never policy-only.
//
// The prior city (and its zone phrase) is kept when the message names no city.
// The prior selected zone is only reused when neither a new city nor a new
// zone phrase was given.
func CarryOver(prior CarryContext, extracted types.Slots, mention resolver.MatchPolicy) EffectiveSlots {
	out := EffectiveSlots{Slots: extracted}

	if prior.SelectedCar != nil {
		switch {
		case extracted.CarIdentifier == "":
			out.SelectedCar = prior.SelectedCar
			out.Intent = types.IntentSingleCar
		case mentionsCar(extracted.CarIdentifier, *prior.SelectedCar, mention):
			out.SelectedCar = prior.SelectedCar
			out.Intent = types.IntentSingleCar
		default:
			if out.Intent == types.IntentPolicyOnly {
				out.Intent = types.IntentSingleCar
			}
		}
	} else if extracted.CarIdentifier != "" && out.Intent == types.IntentPolicyOnly {
		out.Intent = types.IntentSingleCar
	}

	newCity := extracted.City != "" && !strings.EqualFold(strings.TrimSpace(extracted.City), strings.TrimSpace(prior.City))
	newPhrase := extracted.ZonePhrase != "" && !strings.EqualFold(extracted.ZonePhrase, prior.ZonePhrase)

	switch {
	case extracted.City == "":
		out.City = prior.City
		if extracted.ZonePhrase == "" {
			out.ZonePhrase = prior.ZonePhrase
		}
	case !newCity:
		out.City = prior.City
		if extracted.ZonePhrase == "" {
			out.ZonePhrase = prior.ZonePhrase
		}
	}

	if prior.SelectedZone != nil && !newCity && !newPhrase {
		out.SelectedZone = prior.SelectedZone
	}
	return out
}

func mentionsCar(reference string, car types.Car, policy resolver.MatchPolicy) bool {
	return resolver.Matches(reference, car.Plate, policy) || resolver.Matches(reference, car.ID, policy)
}
