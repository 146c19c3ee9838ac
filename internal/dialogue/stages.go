package dialogue

import (
	"context"
	"fmt"

	"zonegate/internal/logging"
	"zonegate/internal/perception"
	"zonegate/internal/resolver"
	"zonegate/internal/types"
)

// Canned replies for turns that end without a verdict. They are translated
// into the turn language before being returned.
const (
	msgNoCity       = "I need to know which city you're asking about. Could you specify the city?"
	msgNoZones      = "I couldn't find any pollution zones in %s. Please check the city name."
	msgCarNotFound  = "I couldn't find a car matching '%s'. Please check the plate number."
	msgNoCars       = "You don't have any cars registered. Please add a vehicle first."
	msgNoPolicy     = "I couldn't find policy information for %s."
	msgFleetMissing = "You don't have any cars registered to check. Please add a vehicle first."
)

type stageFunc func(ctx context.Context, state *TurnState) error

func (r *Router) stageTable() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageExtractIntent: r.extractIntent,
		StageResolveCar:    r.resolveCar,
		StageResolveZone:   r.resolveZone,
		StageFetchPolicy:   r.fetchPolicy,
		StageDecide:        r.decide,
		StageExplain:       r.explain,
	}
}

// extractIntent leaves NextStep unset; the router dispatches on intent.
func (r *Router) extractIntent(ctx context.Context, state *TurnState) error {
	lang, err := r.gateway.DetectLanguage(ctx, state.Message)
	if err != nil {
		logging.RoutingWarn("language detection failed, using %s: %v", r.defaultLanguage, err)
		lang = r.defaultLanguage
	}
	state.Language = lang

	slots, err := r.gateway.ExtractIntent(ctx, state.Message)
	if err != nil {
		return err
	}

	eff := CarryOver(carryContext(state), slots, r.mentionPolicy)
	state.Intent = eff.Intent
	state.CarIdentifier = eff.CarIdentifier
	state.City = eff.City
	state.ZonePhrase = eff.ZonePhrase
	state.SelectedCar = eff.SelectedCar
	state.SetZone(eff.SelectedZone)

	logging.RoutingDebug("turn %d: lang=%s intent=%s car=%q city=%q phrase=%q carried_car=%t carried_zone=%t",
		state.Turn, lang, state.Intent, state.CarIdentifier, state.City, state.ZonePhrase,
		state.SelectedCar != nil, state.SelectedZone != nil)
	return nil
}

func (r *Router) resolveCar(ctx context.Context, state *TurnState) error {
	if state.Intent == types.IntentFleet {
		cars, err := r.vehicles.ListCars(ctx, state.SessionID)
		if err != nil {
			return fmt.Errorf("list cars: %w", err)
		}
		if len(cars) == 0 {
			return &NotFoundError{Entity: "fleet", Message: msgFleetMissing}
		}
		state.Cars = cars
		state.NextStep = StageResolveZone
		return nil
	}

	if state.SelectedCar != nil {
		state.NextStep = StageResolveZone
		return nil
	}

	cars, err := r.vehicles.ListCars(ctx, state.SessionID)
	if err != nil {
		return fmt.Errorf("list cars: %w", err)
	}
	state.Cars = cars

	res := resolver.Resolve(state.CarIdentifier, cars, carKeys, r.matchPolicy)
	switch res.Kind {
	case resolver.Unique:
		car, _ := res.One()
		state.SelectedCar = &car
		state.NextStep = StageResolveZone
		return nil
	case resolver.Ambiguous:
		state.Cars = res.Matches
		return &AmbiguousMatch{Kind: types.PendingCar, Options: carOptions(res.Matches)}
	}

	if state.CarIdentifier == "" {
		return &NotFoundError{Entity: "car", Message: msgNoCars}
	}
	car, err := r.vehicles.FindCar(ctx, state.CarIdentifier)
	if err != nil {
		return fmt.Errorf("find car: %w", err)
	}
	if car == nil {
		return &NotFoundError{Entity: "car", Reference: state.CarIdentifier, Message: fmt.Sprintf(msgCarNotFound, state.CarIdentifier)}
	}
	state.SelectedCar = car
	state.NextStep = StageResolveZone
	return nil
}

func (r *Router) resolveZone(ctx context.Context, state *TurnState) error {
	if state.SelectedZone != nil {
		state.NextStep = StageFetchPolicy
		return nil
	}
	if state.City == "" {
		return &NotFoundError{Entity: "city", Message: msgNoCity}
	}

	zones, err := r.zones.ResolveZoneCandidates(ctx, state.City, state.ZonePhrase)
	if err != nil {
		return fmt.Errorf("resolve zone candidates: %w", err)
	}
	if len(zones) == 0 {
		return &NotFoundError{Entity: "zone", Reference: state.City, Message: fmt.Sprintf(msgNoZones, state.City)}
	}
	state.ZoneCandidates = zones

	// Candidates are already narrowed by the phrase. Only a phrase naming a
	// zone id or name exactly picks one; anything looser ("city center")
	// leaves the narrowed list for the user to choose from.
	res := resolver.Resolve(state.ZonePhrase, zones, zoneKeys, resolver.MatchNormalized)
	if res.Kind == resolver.NotFound {
		res = resolver.Resolve("", zones, zoneKeys, resolver.MatchNormalized)
	}
	switch res.Kind {
	case resolver.Unique:
		zone, _ := res.One()
		state.SetZone(&zone)
		state.NextStep = StageFetchPolicy
		return nil
	case resolver.Ambiguous:
		state.ZoneCandidates = res.Matches
		return &AmbiguousMatch{Kind: types.PendingZone, Options: zoneOptions(res.Matches)}
	}
	return &NotFoundError{Entity: "zone", Reference: state.City, Message: fmt.Sprintf(msgNoZones, state.City)}
}

func (r *Router) fetchPolicy(ctx context.Context, state *TurnState) error {
	if state.SelectedZone == nil {
		return r.violation(state, StageFetchPolicy, StageNone, 0, "policy requested without a selected zone")
	}
	policy, err := r.policies.GetPolicy(ctx, state.SelectedZone.ID)
	if err != nil {
		return fmt.Errorf("get policy %s: %w", state.SelectedZone.ID, err)
	}
	if policy == nil {
		zone := *state.SelectedZone
		state.SetZone(nil)
		return &NotFoundError{Entity: "policy", Reference: zone.ID, Message: fmt.Sprintf(msgNoPolicy, zone.Name)}
	}
	if err := state.SetPolicy(policy); err != nil {
		return r.violation(state, StageFetchPolicy, StageNone, 0, err.Error())
	}

	if state.Intent != types.IntentPolicyOnly {
		state.NextStep = StageDecide
		return nil
	}

	reply, err := r.gateway.ComposeExplanation(ctx, perception.ExplainRequest{
		Intent:   types.IntentPolicyOnly,
		Language: state.Language,
		Zone:     state.SelectedZone,
		Policy:   state.Policy,
	})
	if err != nil {
		return err
	}
	state.Reply = reply
	state.NextStep = StageEnd
	return nil
}

func (r *Router) decide(ctx context.Context, state *TurnState) error {
	if state.Policy == nil {
		return r.violation(state, StageDecide, StageNone, 0, "decision requested without a policy")
	}

	if state.Intent == types.IntentFleet {
		if err := state.SetFleetDecisions(r.engine.DecideFleet(state.Cars, *state.Policy)); err != nil {
			return r.violation(state, StageDecide, StageNone, 0, err.Error())
		}
		state.NextStep = StageExplain
		return nil
	}

	if state.SelectedCar == nil {
		return r.violation(state, StageDecide, StageNone, 0, "decision requested without a selected car")
	}
	if err := state.SetDecision(r.engine.Decide(*state.SelectedCar, *state.Policy)); err != nil {
		return r.violation(state, StageDecide, StageNone, 0, err.Error())
	}
	logging.Decision("%s in %s: allowed=%s reason=%s", state.SelectedCar.Plate, state.Policy.ZoneID, state.Decision.Allowed, state.Decision.ReasonCode)
	state.NextStep = StageExplain
	return nil
}

func (r *Router) explain(ctx context.Context, state *TurnState) error {
	reply, err := r.gateway.ComposeExplanation(ctx, perception.ExplainRequest{
		Intent:   state.Intent,
		Language: state.Language,
		Car:      state.SelectedCar,
		Zone:     state.SelectedZone,
		Policy:   state.Policy,
		Decision: state.Decision,
		Fleet:    state.FleetDecisions,
	})
	if err != nil {
		return err
	}
	state.Reply = reply
	state.NextStep = StageEnd
	return nil
}

func carKeys(c types.Car) []string { return []string{c.Plate, c.ID} }

func zoneKeys(z types.Zone) []string { return []string{z.ID, z.Name} }
