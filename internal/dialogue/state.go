package dialogue

import (
	"encoding/json"
	"fmt"
	"time"

	"zonegate/internal/types"
)

// TurnState is threaded through every stage of one conversational exchange
// and persisted between turns by the session store.
type TurnState struct {
	SessionID string    `json:"session_id"`
	TraceID   string    `json:"trace_id"`
	Turn      int       `json:"turn"`
	UpdatedAt time.Time `json:"updated_at"`

	Language string `json:"language"`
	Message  string `json:"message"`

	Intent        types.Intent `json:"intent,omitempty"`
	CarIdentifier string       `json:"car_identifier,omitempty"`
	City          string       `json:"city,omitempty"`
	ZonePhrase    string       `json:"zone_phrase,omitempty"`

	Cars           []types.Car   `json:"cars,omitempty"`
	SelectedCar    *types.Car    `json:"selected_car,omitempty"`
	ZoneCandidates []types.Zone  `json:"zone_candidates,omitempty"`
	SelectedZone   *types.Zone   `json:"selected_zone,omitempty"`
	Policy         *types.Policy `json:"policy,omitempty"`

	Decision       *types.Decision       `json:"decision,omitempty"`
	FleetDecisions []types.FleetDecision `json:"fleet_decisions,omitempty"`
	DecidedTurn    int                   `json:"decided_turn,omitempty"`

	PendingQuestion       bool              `json:"pending_question"`
	PendingType           types.PendingType `json:"pending_type,omitempty"`
	DisambiguationOptions []types.Option    `json:"disambiguation_options,omitempty"`
	NextStep              Stage             `json:"next_step,omitempty"`

	Reply string `json:"reply"`
}

// NewTurnState creates the empty state of a fresh session.
func NewTurnState(sessionID string) *TurnState {
	return &TurnState{SessionID: sessionID}
}

// BeginTurn starts a new exchange. Per-turn output and resolution work is
// reset; the selected car, the selected zone with its policy, city and zone
// phrase stay behind as carry-over material.
func (s *TurnState) BeginTurn(message, traceID string, now time.Time) {
	s.Turn++
	s.TraceID = traceID
	s.UpdatedAt = now
	s.Message = message
	s.Language = ""

	s.Intent = ""
	s.CarIdentifier = ""
	s.Cars = nil
	s.ZoneCandidates = nil

	s.Decision = nil
	s.FleetDecisions = nil
	s.DecidedTurn = 0

	s.ClearPending()
	s.NextStep = StageNone
	s.Reply = ""
}

// ClearPending drops an outstanding clarifying question.
func (s *TurnState) ClearPending() {
	s.PendingQuestion = false
	s.PendingType = types.PendingNone
	s.DisambiguationOptions = nil
}

// SetZone selects z. A fetched policy for another zone is dropped with it.
func (s *TurnState) SetZone(z *types.Zone) {
	if z == nil || s.Policy == nil || s.Policy.ZoneID != z.ID {
		s.Policy = nil
	}
	if z == nil {
		s.SelectedZone = nil
		return
	}
	zc := *z
	s.SelectedZone = &zc
}

// SetPolicy attaches the policy of the selected zone.
func (s *TurnState) SetPolicy(p *types.Policy) error {
	if s.SelectedZone == nil {
		return fmt.Errorf("policy %s fetched without a selected zone", p.ZoneID)
	}
	if p.ZoneID != s.SelectedZone.ID {
		return fmt.Errorf("policy %s does not belong to selected zone %s", p.ZoneID, s.SelectedZone.ID)
	}
	pc := *p
	s.Policy = &pc
	return nil
}

// SetDecision records the single-car verdict. A verdict is written once per turn.
func (s *TurnState) SetDecision(d types.Decision) error {
	if s.decided() {
		return fmt.Errorf("decision already computed for turn %d", s.Turn)
	}
	s.Decision = &d
	s.DecidedTurn = s.Turn
	return nil
}

// SetFleetDecisions records the per-car verdicts of a fleet turn.
func (s *TurnState) SetFleetDecisions(ds []types.FleetDecision) error {
	if s.decided() {
		return fmt.Errorf("decision already computed for turn %d", s.Turn)
	}
	s.FleetDecisions = ds
	s.DecidedTurn = s.Turn
	return nil
}

func (s *TurnState) decided() bool {
	return s.DecidedTurn == s.Turn && (s.Decision != nil || s.FleetDecisions != nil)
}

// Validate checks the structural invariants of a state. A selected zone and
// its policy are stored together or not at all, and a paused state keeps the
// stage its selection resumes at in NextStep.
func (s *TurnState) Validate() error {
	if s.SelectedZone != nil && s.Policy == nil {
		return fmt.Errorf("zone %s selected without its policy", s.SelectedZone.ID)
	}
	if s.Policy != nil {
		if s.SelectedZone == nil {
			return fmt.Errorf("policy %s set without a selected zone", s.Policy.ZoneID)
		}
		if s.Policy.ZoneID != s.SelectedZone.ID {
			return fmt.Errorf("policy %s does not match selected zone %s", s.Policy.ZoneID, s.SelectedZone.ID)
		}
	}
	if s.PendingQuestion {
		if s.PendingType == types.PendingNone {
			return fmt.Errorf("pending question without a type")
		}
		if len(s.DisambiguationOptions) == 0 {
			return fmt.Errorf("pending question without options")
		}
		if want := resumeStage(s.PendingType); s.NextStep != want {
			return fmt.Errorf("pending %s question resumes at %q, want %q", s.PendingType, s.NextStep, want)
		}
		for i, o := range s.DisambiguationOptions {
			if o.Index != i {
				return fmt.Errorf("option %d has index %d", i, o.Index)
			}
		}
	} else if len(s.DisambiguationOptions) > 0 {
		return fmt.Errorf("options stored without a pending question")
	}
	if s.NextStep != StageNone && !s.NextStep.Valid() {
		return fmt.Errorf("unknown next step %q", s.NextStep)
	}
	return nil
}

// Clone returns a deep copy.
func (s *TurnState) Clone() (*TurnState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone turn state: %w", err)
	}
	var out TurnState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone turn state: %w", err)
	}
	return &out, nil
}

// Snapshot renders the state for diagnostics.
func (s *TurnState) Snapshot() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("<unrenderable state: %v>", err)
	}
	return string(data)
}
