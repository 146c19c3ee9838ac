package dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"zonegate/internal/decision"
	"zonegate/internal/perception"
	"zonegate/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var testFleet = []types.Car{
	{ID: "car_001", Plate: "AB-123-CD", FuelType: types.FuelDiesel, EmissionClass: 4, Category: types.CategoryM1, FirstRegistration: day(2010, 3, 15)},
	{ID: "car_002", Plate: "EF-456-GH", FuelType: types.FuelPetrol, EmissionClass: 5, Category: types.CategoryM1, FirstRegistration: day(2015, 7, 22)},
	{ID: "car_003", Plate: "IJ-789-KL", FuelType: types.FuelElectric, Category: types.CategoryM1, FirstRegistration: day(2021, 1, 10)},
	{ID: "car_004", Plate: "MN-321-OP", FuelType: types.FuelDiesel, EmissionClass: 6, Category: types.CategoryN1, FirstRegistration: day(2018, 11, 5)},
}

var (
	lezDieselE4 = types.Rule{ID: "ams_lez_diesel_e4", Condition: "Diesel passenger cars (M1) with Euro class 4 or lower", Fuels: []types.FuelType{types.FuelDiesel}, MaxEmissionClass: 4, Categories: []types.VehicleCategory{types.CategoryM1}}
	zezN1       = types.Rule{ID: "ams_zez_n1", Condition: "Light commercial vehicles (N1) must be zero-emission (BEV)", Categories: []types.VehicleCategory{types.CategoryN1}, NonZeroEmission: true}
	rtdDieselE3 = types.Rule{ID: "rtd_diesel_e3", Condition: "Diesel vehicles with Euro class 3 or lower", Fuels: []types.FuelType{types.FuelDiesel}, MaxEmissionClass: 3}
)

// fakeCatalog serves a small fixed dataset.
type fakeCatalog struct {
	cars     []types.Car
	extra    map[string]types.Car
	zones    map[string][]types.Zone
	policies map[string]*types.Policy
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		cars:  append([]types.Car(nil), testFleet...),
		extra: map[string]types.Car{},
		zones: map[string][]types.Zone{
			"amsterdam": {
				{ID: "ams_lez_01", City: "Amsterdam", Name: "Amsterdam City Center LEZ", Type: types.ZoneLEZ},
				{ID: "ams_zez_01", City: "Amsterdam", Name: "Amsterdam Logistics ZEZ", Type: types.ZoneZEZ},
			},
			"rotterdam": {
				{ID: "rtd_lez_01", City: "Rotterdam", Name: "Rotterdam Environmental Zone", Type: types.ZoneLEZ},
			},
			"utrecht": {
				{ID: "utr_mixed_01", City: "Utrecht", Name: "Utrecht Mixed Zone", Type: types.ZoneLEZ},
			},
		},
		policies: map[string]*types.Policy{
			"ams_lez_01":   {ZoneID: "ams_lez_01", City: "Amsterdam", ZoneName: "Amsterdam City Center LEZ", EffectiveFrom: day(2020, 1, 1), Rules: []types.Rule{lezDieselE4}},
			"ams_zez_01":   {ZoneID: "ams_zez_01", City: "Amsterdam", ZoneName: "Amsterdam Logistics ZEZ", EffectiveFrom: day(2025, 1, 1), Rules: []types.Rule{zezN1}},
			"rtd_lez_01":   {ZoneID: "rtd_lez_01", City: "Rotterdam", ZoneName: "Rotterdam Environmental Zone", EffectiveFrom: day(2019, 6, 1), Rules: []types.Rule{rtdDieselE3}},
			"utr_mixed_01": {ZoneID: "utr_mixed_01", City: "Utrecht", ZoneName: "Utrecht Mixed Zone", EffectiveFrom: day(2020, 1, 1), Rules: []types.Rule{lezDieselE4, zezN1}},
		},
	}
}

func (c *fakeCatalog) ListCars(_ context.Context, _ string) ([]types.Car, error) {
	if c.err != nil {
		return nil, c.err
	}
	return append([]types.Car(nil), c.cars...), nil
}

func (c *fakeCatalog) FindCar(_ context.Context, identifier string) (*types.Car, error) {
	if car, ok := c.extra[identifier]; ok {
		return &car, nil
	}
	return nil, nil
}

func (c *fakeCatalog) ResolveZoneCandidates(_ context.Context, city, phrase string) ([]types.Zone, error) {
	zones := c.zones[strings.ToLower(city)]
	phrase = strings.ToLower(phrase)
	var out []types.Zone
	for _, z := range zones {
		switch {
		case strings.Contains(phrase, "zez") || strings.Contains(phrase, "logistic"):
			if z.Type == types.ZoneZEZ {
				out = append(out, z)
			}
		case strings.Contains(phrase, "lez"):
			if z.Type == types.ZoneLEZ {
				out = append(out, z)
			}
		default:
			out = append(out, z)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetPolicy(_ context.Context, zoneID string) (*types.Policy, error) {
	p, ok := c.policies[zoneID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// fakeGateway returns scripted slots per message and deterministic prose.
type fakeGateway struct {
	mu sync.Mutex

	lang       string
	langErr    error
	slots      map[string]types.Slots
	extractErr error
	explainErr error

	questions    []types.PendingType
	explanations []perception.ExplainRequest
	translations []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{lang: "en", slots: map[string]types.Slots{}}
}

func (g *fakeGateway) DetectLanguage(_ context.Context, _ string) (string, error) {
	if g.langErr != nil {
		return "", g.langErr
	}
	return g.lang, nil
}

func (g *fakeGateway) ExtractIntent(_ context.Context, message string) (types.Slots, error) {
	if g.extractErr != nil {
		return types.Slots{}, g.extractErr
	}
	s, ok := g.slots[message]
	if !ok {
		return types.Slots{}, fmt.Errorf("no scripted slots for %q", message)
	}
	return s, nil
}

func (g *fakeGateway) MakeDisambiguationQuestion(_ context.Context, kind types.PendingType, options []types.Option, lang string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questions = append(g.questions, kind)
	labels := make([]string, len(options))
	for i, o := range options {
		labels[i] = fmt.Sprintf("%d) %s", o.Index, o.Label)
	}
	return fmt.Sprintf("[%s] Which %s? %s", lang, kind, strings.Join(labels, "; ")), nil
}

func (g *fakeGateway) ComposeExplanation(_ context.Context, req perception.ExplainRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.explainErr != nil {
		return "", g.explainErr
	}
	g.explanations = append(g.explanations, req)
	switch {
	case req.Decision != nil:
		return fmt.Sprintf("[%s] allowed=%s (%s)", req.Language, req.Decision.Allowed, req.Decision.ReasonCode), nil
	case req.Fleet != nil:
		return fmt.Sprintf("[%s] fleet of %d checked", req.Language, len(req.Fleet)), nil
	default:
		return fmt.Sprintf("[%s] policy for %s", req.Language, req.Policy.ZoneName), nil
	}
}

func (g *fakeGateway) Translate(_ context.Context, message, lang string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.translations = append(g.translations, lang)
	if lang == "en" {
		return message, nil
	}
	return "[" + lang + "] " + message, nil
}

// memSessions is a trivial deep-copying session store.
type memSessions struct {
	mu     sync.Mutex
	states map[string]*TurnState
	saves  int
}

func newMemSessions() *memSessions {
	return &memSessions{states: map[string]*TurnState{}}
}

func (m *memSessions) Load(_ context.Context, id string) (*TurnState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return s.Clone()
}

func (m *memSessions) Save(_ context.Context, id string, s *TurnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, err := s.Clone()
	if err != nil {
		return err
	}
	m.states[id] = cp
	m.saves++
	return nil
}

// stageRecorder captures executed stages.
type stageRecorder struct {
	mu     sync.Mutex
	events []StageEvent
}

func (r *stageRecorder) ObserveStage(ev StageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *stageRecorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Stage
	}
	return out
}

func (r *stageRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	router   *Router
	gateway  *fakeGateway
	catalog  *fakeCatalog
	sessions *memSessions
	stages   *stageRecorder
}

func newHarness(opts ...Option) (*harness, error) {
	h := &harness{
		gateway:  newFakeGateway(),
		catalog:  newFakeCatalog(),
		sessions: newMemSessions(),
		stages:   &stageRecorder{},
	}
	engine, err := decision.NewEngine(decision.WithClock(func() time.Time { return day(2026, 6, 1) }))
	if err != nil {
		return nil, err
	}
	all := append([]Option{WithObserver(h.stages), WithClock(func() time.Time { return day(2026, 6, 1) })}, opts...)
	h.router, err = NewRouter(Deps{
		Gateway:  h.gateway,
		Vehicles: h.catalog,
		Zones:    h.catalog,
		Policies: h.catalog,
		Sessions: h.sessions,
		Engine:   engine,
	}, all...)
	if err != nil {
		return nil, err
	}
	return h, nil
}
