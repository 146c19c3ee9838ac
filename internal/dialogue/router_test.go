package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zonegate/internal/perception"
	"zonegate/internal/types"
)

func mustHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h, err := newHarness(opts...)
	require.NoError(t, err)
	return h
}

func TestRouter_SingleCarBanned(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["Can AB-123-CD enter the Amsterdam LEZ?"] = types.Slots{
		Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam", ZonePhrase: "LEZ",
	}

	res, err := h.router.Process(context.Background(), "s1", "Can AB-123-CD enter the Amsterdam LEZ?")
	require.NoError(t, err)

	assert.False(t, res.PendingQuestion)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.AllowedNo, res.Decision.Allowed)
	assert.Equal(t, types.ReasonBannedByPolicy, res.Decision.ReasonCode)
	assert.Equal(t, "[en] allowed=false (BANNED_BY_POLICY)", res.Reply)
	assert.NotEmpty(t, res.TraceID)
	assert.Equal(t, []Stage{StageExtractIntent, StageResolveCar, StageResolveZone, StageFetchPolicy, StageDecide, StageExplain}, h.stages.stages())

	stored, err := h.sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, stored.SelectedCar)
	assert.Equal(t, "AB-123-CD", stored.SelectedCar.Plate)
	require.NotNil(t, stored.SelectedZone)
	assert.Equal(t, "ams_lez_01", stored.SelectedZone.ID)
	require.NotNil(t, stored.Policy)
	assert.Equal(t, stored.SelectedZone.ID, stored.Policy.ZoneID)
}

func TestRouter_ElectricAllowed(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["IJ-789-KL in Rotterdam?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "ij 789 kl", City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "IJ-789-KL in Rotterdam?")
	require.NoError(t, err)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.AllowedYes, res.Decision.Allowed)
	assert.Equal(t, types.ReasonZeroEmissionExempt, res.Decision.ReasonCode)
}

func TestRouter_ZoneDisambiguationRoundTrip(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["Can AB-123-CD go to Amsterdam?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam"}

	res, err := h.router.Process(context.Background(), "s1", "Can AB-123-CD go to Amsterdam?")
	require.NoError(t, err)
	require.True(t, res.PendingQuestion)
	require.Len(t, res.Options, 2)
	assert.Equal(t, 0, res.Options[0].Index)
	assert.Equal(t, "Amsterdam City Center LEZ (LEZ)", res.Options[0].Label)
	assert.Equal(t, 1, res.Options[1].Index)
	assert.Contains(t, res.Reply, "Which zone?")
	assert.Nil(t, res.Decision)
	assert.Equal(t, []types.PendingType{types.PendingZone}, h.gateway.questions)

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, StageFetchPolicy, stored.NextStep)
	assert.Nil(t, stored.SelectedZone)
	assert.Nil(t, stored.Policy)

	h.stages.reset()
	res, err = h.router.Answer(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.False(t, res.PendingQuestion)
	assert.Empty(t, res.Options)
	assert.NotEmpty(t, res.Reply)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.AllowedNo, res.Decision.Allowed)
	assert.Equal(t, []Stage{StageFetchPolicy, StageDecide, StageExplain}, h.stages.stages())

	stored, _ = h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, "ams_lez_01", stored.SelectedZone.ID)
	assert.False(t, stored.PendingQuestion)
}

func TestRouter_LooseZonePhraseAsksForZone(t *testing.T) {
	for _, phrase := range []string{"city center", "centre", "downtown"} {
		t.Run(phrase, func(t *testing.T) {
			h := mustHarness(t)
			msg := "AB-123-CD Amsterdam " + phrase
			h.gateway.slots[msg] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam", ZonePhrase: phrase}

			res, err := h.router.Process(context.Background(), "s1", msg)
			require.NoError(t, err)
			require.True(t, res.PendingQuestion)
			require.Len(t, res.Options, 2)
			assert.Equal(t, "ams_lez_01", res.Options[0].EntityID)
			assert.Equal(t, "ams_zez_01", res.Options[1].EntityID)
			assert.Nil(t, res.Decision)

			stored, _ := h.sessions.Load(context.Background(), "s1")
			assert.Equal(t, StageFetchPolicy, stored.NextStep)
		})
	}
}

func TestRouter_ExactZoneNameSelectsZone(t *testing.T) {
	h := mustHarness(t)
	h.catalog.zones["amsterdam"] = append(h.catalog.zones["amsterdam"],
		types.Zone{ID: "ams_lez_02", City: "Amsterdam", Name: "Amsterdam Ring", Type: types.ZoneLEZ})
	h.catalog.policies["ams_lez_02"] = &types.Policy{ZoneID: "ams_lez_02", City: "Amsterdam", ZoneName: "Amsterdam Ring", EffectiveFrom: day(2020, 1, 1)}
	h.gateway.slots["AB-123-CD amsterdam ring"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam", ZonePhrase: "amsterdam ring"}

	res, err := h.router.Process(context.Background(), "s1", "AB-123-CD amsterdam ring")
	require.NoError(t, err)
	assert.False(t, res.PendingQuestion)
	require.NotNil(t, res.Decision)

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, "ams_lez_02", stored.SelectedZone.ID)
}

func TestRouter_MissingPolicyDropsZone(t *testing.T) {
	h := mustHarness(t)
	delete(h.catalog.policies, "rtd_lez_01")
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)
	assert.Nil(t, res.Decision)
	assert.Contains(t, res.Reply, "Rotterdam Environmental Zone")

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Nil(t, stored.SelectedZone)
	assert.Nil(t, stored.Policy)
	require.NoError(t, stored.Validate())
}

func TestRouter_CarPauseKeepsCarriedZoneAndPolicy(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}
	h.gateway.slots["and my other car?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "car"}
	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)

	res, err := h.router.Process(context.Background(), "s1", "and my other car?")
	require.NoError(t, err)
	require.True(t, res.PendingQuestion)

	stored, _ := h.sessions.Load(context.Background(), "s1")
	require.NotNil(t, stored.SelectedZone)
	require.NotNil(t, stored.Policy)
	assert.Equal(t, stored.SelectedZone.ID, stored.Policy.ZoneID)
	assert.Equal(t, StageResolveZone, stored.NextStep)
}

func TestRouter_CarDisambiguationResumesAtZone(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["is my car ok in Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "is my car ok in Rotterdam")
	require.NoError(t, err)
	require.True(t, res.PendingQuestion)
	require.Len(t, res.Options, 4)
	assert.Equal(t, "AB-123-CD (diesel, euro4)", res.Options[0].Label)
	assert.Equal(t, "IJ-789-KL (electric, unknown euro class)", res.Options[2].Label)

	h.stages.reset()
	res, err = h.router.Answer(context.Background(), "s1", 3)
	require.NoError(t, err)
	assert.False(t, res.PendingQuestion)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.ReasonMeetsRequirements, res.Decision.ReasonCode)
	assert.Equal(t, []Stage{StageResolveZone, StageFetchPolicy, StageDecide, StageExplain}, h.stages.stages())

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, "MN-321-OP", stored.SelectedCar.Plate)
}

func TestRouter_AnswerOutOfRange(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["Amsterdam?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam"}
	_, err := h.router.Process(context.Background(), "s1", "Amsterdam?")
	require.NoError(t, err)
	before, _ := h.sessions.Load(context.Background(), "s1")
	saves := h.sessions.saves

	for _, idx := range []int{-1, 2, 99} {
		_, err := h.router.Answer(context.Background(), "s1", idx)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "index %d", idx)
		assert.Equal(t, "selection_index", verr.Field)
	}

	after, _ := h.sessions.Load(context.Background(), "s1")
	assert.True(t, after.PendingQuestion)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, h.sessions.saves)
}

func TestRouter_AnswerWithoutPendingQuestion(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}
	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)

	_, err = h.router.Answer(context.Background(), "s1", 0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrNoPendingQuestion)
}

func TestRouter_AnswerUnknownSession(t *testing.T) {
	h := mustHarness(t)
	_, err := h.router.Answer(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRouter_CarNotFoundEndsDirectly(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["ZZ-999-ZZ in Amsterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "ZZ-999-ZZ", City: "Amsterdam"}

	res, err := h.router.Process(context.Background(), "s1", "ZZ-999-ZZ in Amsterdam")
	require.NoError(t, err)
	assert.False(t, res.PendingQuestion)
	assert.Equal(t, "I couldn't find a car matching 'ZZ-999-ZZ'. Please check the plate number.", res.Reply)
	assert.Equal(t, []Stage{StageExtractIntent, StageResolveCar}, h.stages.stages())

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, StageEnd, stored.NextStep)
	assert.Nil(t, stored.SelectedZone)
}

func TestRouter_FindCarOutsideFleet(t *testing.T) {
	h := mustHarness(t)
	h.catalog.extra["XY-111-ZZ"] = types.Car{ID: "car_099", Plate: "XY-111-ZZ", FuelType: types.FuelPetrol, EmissionClass: 6, Category: types.CategoryM1}
	h.gateway.slots["XY-111-ZZ Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "XY-111-ZZ", City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "XY-111-ZZ Rotterdam")
	require.NoError(t, err)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.AllowedYes, res.Decision.Allowed)
}

func TestRouter_NotFoundRepliesAreTranslated(t *testing.T) {
	h := mustHarness(t)
	h.gateway.lang = "nl"
	h.gateway.slots["mag mijn auto erin?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD"}

	res, err := h.router.Process(context.Background(), "s1", "mag mijn auto erin?")
	require.NoError(t, err)
	assert.Equal(t, "[nl] "+msgNoCity, res.Reply)
	assert.Equal(t, "nl", res.Language)
	assert.Equal(t, []string{"nl"}, h.gateway.translations)
}

func TestRouter_UnknownCityAndMissingPolicy(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD Paris"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Paris"}
	res, err := h.router.Process(context.Background(), "s1", "AB-123-CD Paris")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find any pollution zones in Paris. Please check the city name.", res.Reply)

	delete(h.catalog.policies, "rtd_lez_01")
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}
	res, err = h.router.Process(context.Background(), "s2", "AB-123-CD Rotterdam")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find policy information for Rotterdam Environmental Zone.", res.Reply)
	assert.Nil(t, res.Decision)
}

func TestRouter_EmptyFleet(t *testing.T) {
	h := mustHarness(t)
	h.catalog.cars = nil
	h.gateway.slots["my car in Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "my car in Rotterdam")
	require.NoError(t, err)
	assert.Equal(t, msgNoCars, res.Reply)
}

func TestRouter_CarryOverKeepsVehicle(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD in the Amsterdam LEZ?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam", ZonePhrase: "lez"}
	h.gateway.slots["and what about Rotterdam?"] = types.Slots{Intent: types.IntentPolicyOnly, City: "Rotterdam"}

	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD in the Amsterdam LEZ?")
	require.NoError(t, err)

	res, err := h.router.Process(context.Background(), "s1", "and what about Rotterdam?")
	require.NoError(t, err)
	assert.Equal(t, types.IntentSingleCar, res.Intent)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.ReasonMeetsRequirements, res.Decision.ReasonCode)

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, "AB-123-CD", stored.SelectedCar.Plate)
	assert.Equal(t, "rtd_lez_01", stored.SelectedZone.ID)
	assert.Equal(t, 2, stored.Turn)
}

func TestRouter_CarryOverReusesZone(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD in the Amsterdam LEZ?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam", ZonePhrase: "lez"}
	h.gateway.slots["and IJ-789-KL?"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "IJ-789-KL"}

	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD in the Amsterdam LEZ?")
	require.NoError(t, err)
	res, err := h.router.Process(context.Background(), "s1", "and IJ-789-KL?")
	require.NoError(t, err)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.ReasonZeroEmissionExempt, res.Decision.ReasonCode)

	stored, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, "IJ-789-KL", stored.SelectedCar.Plate)
	assert.Equal(t, "ams_lez_01", stored.SelectedZone.ID)
}

func TestRouter_FleetOfFour(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["can my cars enter Utrecht?"] = types.Slots{Intent: types.IntentFleet, City: "Utrecht"}

	res, err := h.router.Process(context.Background(), "s1", "can my cars enter Utrecht?")
	require.NoError(t, err)
	require.Len(t, res.FleetDecisions, 4)
	assert.Nil(t, res.Decision)

	wantPlates := []string{"AB-123-CD", "EF-456-GH", "IJ-789-KL", "MN-321-OP"}
	wantAllowed := []types.Allowed{types.AllowedNo, types.AllowedYes, types.AllowedYes, types.AllowedNo}
	for i, fd := range res.FleetDecisions {
		assert.Equal(t, wantPlates[i], fd.Plate)
		assert.Equal(t, wantAllowed[i], fd.Decision.Allowed, fd.Plate)
	}
	assert.Equal(t, "[en] fleet of 4 checked", res.Reply)
}

func TestRouter_PolicyOnlySkipsCarAndDecision(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["what are the rules for the Amsterdam logistics zone?"] = types.Slots{Intent: types.IntentPolicyOnly, City: "Amsterdam", ZonePhrase: "logistics"}

	res, err := h.router.Process(context.Background(), "s1", "what are the rules for the Amsterdam logistics zone?")
	require.NoError(t, err)
	assert.Equal(t, "[en] policy for Amsterdam Logistics ZEZ", res.Reply)
	assert.Nil(t, res.Decision)
	assert.Equal(t, []Stage{StageExtractIntent, StageResolveZone, StageFetchPolicy}, h.stages.stages())
	require.Len(t, h.gateway.explanations, 1)
	assert.Equal(t, types.IntentPolicyOnly, h.gateway.explanations[0].Intent)
	assert.Nil(t, h.gateway.explanations[0].Decision)
}

func TestRouter_LanguageDetectionFallsBack(t *testing.T) {
	h := mustHarness(t, WithDefaultLanguage("de"))
	h.gateway.langErr = errors.New("model down")
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}

	res, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)
	assert.Equal(t, "de", res.Language)
	assert.True(t, strings.HasPrefix(res.Reply, "[de]"))
}

func TestRouter_GenerationErrorIsFatalAndNotSaved(t *testing.T) {
	h := mustHarness(t)
	h.gateway.extractErr = &perception.GenerationError{Op: "extract_intent", Attempts: []perception.Attempt{{Profile: "primary", Err: errors.New("bad json")}}}

	_, err := h.router.Process(context.Background(), "s1", "hello")
	var gerr *perception.GenerationError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, 0, h.sessions.saves)

	st, _ := h.sessions.Load(context.Background(), "s1")
	assert.Nil(t, st)
}

func TestRouter_GenerationErrorPreservesPriorState(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}
	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)
	before, _ := h.sessions.Load(context.Background(), "s1")

	h.gateway.explainErr = &perception.GenerationError{Op: "compose_explanation"}
	_, err = h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	require.Error(t, err)

	after, _ := h.sessions.Load(context.Background(), "s1")
	assert.Equal(t, before, after)
}

func TestRouter_StageCeiling(t *testing.T) {
	h := mustHarness(t, WithMaxTransitions(3))
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}

	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	var v *RoutingInvariantViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, 3, v.Steps)
	assert.Equal(t, StageFetchPolicy, v.Stage)
	assert.Contains(t, v.Dump, `"session_id": "s1"`)
	assert.Equal(t, 0, h.sessions.saves)
}

func TestRouter_ForbiddenTransition(t *testing.T) {
	table := DefaultTransitions()
	table[StageResolveZone] = []Stage{StageEnd}
	h := mustHarness(t, WithTransitions(table))
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}

	_, err := h.router.Process(context.Background(), "s1", "AB-123-CD Rotterdam")
	var v *RoutingInvariantViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, StageResolveZone, v.Stage)
	assert.Equal(t, StageFetchPolicy, v.Next)
}

func TestRouter_RejectsEmptyInput(t *testing.T) {
	h := mustHarness(t)
	_, err := h.router.Process(context.Background(), "", "hi")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)

	_, err = h.router.Process(context.Background(), "s1", "   ")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message", verr.Field)
}

func TestRouter_TraceIDFromContext(t *testing.T) {
	h := mustHarness(t)
	h.gateway.slots["AB-123-CD Rotterdam"] = types.Slots{Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"}

	ctx := WithTraceID(context.Background(), "trace-123")
	res, err := h.router.Process(ctx, "s1", "AB-123-CD Rotterdam")
	require.NoError(t, err)
	assert.Equal(t, "trace-123", res.TraceID)
	for _, ev := range h.stages.events {
		assert.Equal(t, "trace-123", ev.TraceID)
	}
}

func TestNewRouter_RejectsCyclicTable(t *testing.T) {
	table := DefaultTransitions()
	table[StageFetchPolicy] = []Stage{StageResolveZone, StageEnd}
	_, err := newHarness(WithTransitions(table))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewRouter_RequiresDeps(t *testing.T) {
	_, err := NewRouter(Deps{})
	assert.Error(t, err)
}

// Every scripted outcome, under every intent, must reach end well inside the
// ceiling.
func TestRouter_EveryScenarioTerminates(t *testing.T) {
	scenarios := map[string]types.Slots{
		"single unique":      {Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Rotterdam"},
		"single not found":   {Intent: types.IntentSingleCar, CarIdentifier: "nope", City: "Rotterdam"},
		"single ambiguous":   {Intent: types.IntentSingleCar, City: "Rotterdam"},
		"zone ambiguous":     {Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Amsterdam"},
		"no city":            {Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD"},
		"unknown city":       {Intent: types.IntentSingleCar, CarIdentifier: "AB-123-CD", City: "Oslo"},
		"fleet":              {Intent: types.IntentFleet, City: "Rotterdam"},
		"fleet zone ambig":   {Intent: types.IntentFleet, City: "Amsterdam"},
		"policy only":        {Intent: types.IntentPolicyOnly, City: "Rotterdam"},
		"policy zone ambig":  {Intent: types.IntentPolicyOnly, City: "Amsterdam"},
		"policy no city":     {Intent: types.IntentPolicyOnly},
		"policy with a car":  {Intent: types.IntentPolicyOnly, CarIdentifier: "EF-456-GH", City: "Rotterdam"},
		"partial plate":      {Intent: types.IntentSingleCar, CarIdentifier: "456", City: "Rotterdam"},
		"ambiguous fragment": {Intent: types.IntentSingleCar, CarIdentifier: "-", City: "Rotterdam"},
	}
	for name, slots := range scenarios {
		t.Run(name, func(t *testing.T) {
			h := mustHarness(t)
			h.gateway.slots["msg"] = slots
			res, err := h.router.Process(context.Background(), "s", "msg")
			require.NoError(t, err)
			assert.NotEmpty(t, res.Reply)
			assert.LessOrEqual(t, len(h.stages.events), DefaultMaxTransitions)

			for res.PendingQuestion {
				res, err = h.router.Answer(context.Background(), "s", len(res.Options)-1)
				require.NoError(t, err)
				assert.NotEmpty(t, res.Reply)
			}
		})
	}
}
