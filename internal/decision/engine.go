// Package decision evaluates zone policies against vehicles. It is fully
// deterministic: the verdict depends only on the car, the policy and the
// engine clock.
package decision

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"zonegate/internal/logging"
	"zonegate/internal/types"
)

// Vehicle attributes a rule can require, in reporting order.
const (
	FieldFuelType         = "fuel_type"
	FieldEmissionClass    = "emission_class"
	FieldVehicleCategory  = "vehicle_category"
	FieldRegistrationDate = "registration_date"
)

var fieldOrder = []string{FieldFuelType, FieldEmissionClass, FieldVehicleCategory, FieldRegistrationDate}

// Engine decides eligibility. It is safe for concurrent use.
type Engine struct {
	program *analysis.ProgramInfo
	now     func() time.Time

	// mu serializes evaluations over the shared program info.
	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for effective-date checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine parses and analyses the rule program once.
func NewEngine(opts ...Option) (*Engine, error) {
	unit, err := parse.Unit(strings.NewReader(banProgram))
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analysis error: %w", err)
	}
	e := &Engine{program: info, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MustNewEngine is NewEngine for static setups; it panics on error.
func MustNewEngine(opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Decide evaluates policy against car.
func (e *Engine) Decide(car types.Car, policy types.Policy) types.Decision {
	if missing := MissingFields(car, policy); len(missing) > 0 {
		logging.DecisionDebug("%s: missing %v", car.Plate, missing)
		return types.Decision{
			Allowed:       types.AllowedUnknown,
			ReasonCode:    types.ReasonMissingVehicleData,
			MissingFields: missing,
			NextActions:   []string{fmt.Sprintf("Please provide %s for vehicle %s", strings.Join(missing, ", "), car.Plate)},
		}
	}

	if today := dateOf(e.now()); !policy.EffectiveFrom.IsZero() && today.Before(dateOf(policy.EffectiveFrom)) {
		return types.Decision{
			Allowed:    types.AllowedYes,
			ReasonCode: types.ReasonPolicyNotYetEffective,
			Factors:    []string{"Policy effective from " + policy.EffectiveFrom.Format("2006-01-02")},
		}
	}

	if car.FuelType.IsZeroEmission() {
		return types.Decision{
			Allowed:    types.AllowedYes,
			ReasonCode: types.ReasonZeroEmissionExempt,
			Factors:    []string{fmt.Sprintf("Zero-emission vehicles are exempt from %s restrictions", zoneName(policy))},
		}
	}

	matched, err := e.bannedBy(car, policy)
	if err != nil {
		// The program is static and facts are well-formed; an evaluation
		// failure is a defect, never a verdict.
		logging.Get(logging.CategoryDecision).Error("rule evaluation failed for %s in %s: %v", car.Plate, policy.ZoneID, err)
		return types.Decision{
			Allowed:     types.AllowedUnknown,
			ReasonCode:  types.ReasonMissingVehicleData,
			NextActions: []string{"Eligibility could not be evaluated; please try again later"},
		}
	}

	if len(matched) > 0 {
		factors := make([]string, 0, len(matched))
		for _, r := range matched {
			factors = append(factors, "Matches rule: "+r.Condition)
		}
		logging.Decision("%s banned from %s by %d rule(s)", car.Plate, policy.ZoneID, len(matched))
		return types.Decision{
			Allowed:    types.AllowedNo,
			ReasonCode: types.ReasonBannedByPolicy,
			Factors:    factors,
			NextActions: []string{
				fmt.Sprintf("Vehicle does not meet %s requirements", zoneName(policy)),
				"Consider using an alternative vehicle or public transportation",
			},
		}
	}

	return types.Decision{
		Allowed:    types.AllowedYes,
		ReasonCode: types.ReasonMeetsRequirements,
		Factors:    []string{fmt.Sprintf("Vehicle meets all requirements for %s", zoneName(policy))},
	}
}

// DecideFleet decides every car independently, preserving input order.
func (e *Engine) DecideFleet(cars []types.Car, policy types.Policy) []types.FleetDecision {
	out := make([]types.FleetDecision, 0, len(cars))
	for _, c := range cars {
		out = append(out, types.FleetDecision{CarID: c.ID, Plate: c.Plate, Decision: e.Decide(c, policy)})
	}
	return out
}

// MissingFields lists the attributes the policy's rules constrain that the
// car lacks. A zero-emission car only needs its fuel type, since it is
// exempt from every ban.
func MissingFields(car types.Car, policy types.Policy) []string {
	required := map[string]bool{}
	for _, r := range policy.Rules {
		if len(r.Fuels) > 0 || r.NonZeroEmission {
			required[FieldFuelType] = true
		}
		if r.MaxEmissionClass > 0 {
			required[FieldEmissionClass] = true
		}
		if len(r.Categories) > 0 {
			required[FieldVehicleCategory] = true
		}
		if !r.RegisteredBefore.IsZero() {
			required[FieldRegistrationDate] = true
		}
	}
	if len(required) == 0 {
		return nil
	}
	if car.FuelType.IsZeroEmission() {
		return nil
	}

	present := map[string]bool{
		FieldFuelType:         car.FuelType != "",
		FieldEmissionClass:    car.EmissionClass > 0,
		FieldVehicleCategory:  car.Category != "",
		FieldRegistrationDate: !car.FirstRegistration.IsZero(),
	}
	var missing []string
	for _, f := range fieldOrder {
		if required[f] && !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// bannedBy returns the rules that ban car, in policy order.
func (e *Engine) bannedBy(car types.Car, policy types.Policy) ([]types.Rule, error) {
	store := factstore.NewSimpleInMemoryStore()
	add := func(pred string, args ...ast.BaseTerm) {
		store.Add(ast.NewAtom(pred, args...))
	}

	if car.FuelType != "" {
		n, err := nameOf(string(car.FuelType))
		if err != nil {
			return nil, err
		}
		add("car_fuel", n)
	}
	if car.EmissionClass > 0 {
		add("car_euro", ast.Number(int64(car.EmissionClass)))
	}
	if car.Category != "" {
		n, err := nameOf(string(car.Category))
		if err != nil {
			return nil, err
		}
		add("car_category", n)
	}
	if !car.FirstRegistration.IsZero() {
		add("car_registered", ast.Number(dateNumber(car.FirstRegistration)))
	}

	byID := make(map[string]types.Rule, len(policy.Rules))
	for i, r := range policy.Rules {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("rule_%d", i)
		}
		r.ID = id
		byID[id] = r

		rid := ast.String(id)
		add("rule", rid)
		for _, f := range r.Fuels {
			n, err := nameOf(string(f))
			if err != nil {
				return nil, err
			}
			add("rule_fuel", rid, n)
		}
		if r.MaxEmissionClass > 0 {
			add("rule_euro_below", rid, ast.Number(int64(r.MaxEmissionClass+1)))
		}
		for _, c := range r.Categories {
			n, err := nameOf(string(c))
			if err != nil {
				return nil, err
			}
			add("rule_category", rid, n)
		}
		if !r.RegisteredBefore.IsZero() {
			add("rule_registered_before", rid, ast.Number(dateNumber(r.RegisteredBefore)))
		}
		if r.NonZeroEmission {
			add("rule_non_zero_emission", rid)
		}
	}

	e.mu.Lock()
	_, err := engine.EvalProgramWithStats(e.program, store)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	hits := map[string]bool{}
	err = store.GetFacts(ast.NewQuery(ast.PredicateSym{Symbol: "banned_by", Arity: 1}), func(a ast.Atom) error {
		if c, ok := a.Args[0].(ast.Constant); ok && c.Type == ast.StringType {
			hits[c.Symbol] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	var matched []types.Rule
	for i, r := range policy.Rules {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("rule_%d", i)
		}
		if hits[id] {
			matched = append(matched, byID[id])
		}
	}
	return matched, nil
}

// nameOf converts a data value into a Mangle name constant ("M1" -> /m1).
func nameOf(v string) (ast.Constant, error) {
	var b strings.Builder
	b.WriteByte('/')
	for _, r := range strings.ToLower(strings.TrimSpace(v)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return ast.Name(b.String())
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(y*10000 + int(m)*100 + d)
}

func zoneName(p types.Policy) string {
	if p.ZoneName != "" {
		return p.ZoneName
	}
	return p.ZoneID
}
