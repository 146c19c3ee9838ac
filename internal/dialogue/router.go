// Package dialogue is the turn state machine: it sequences extraction,
// resolution, policy fetch, decision and explanation, pauses for clarifying
// questions and resumes from the user's selection.
//
// The Router holds no per-session state. Everything a turn needs is loaded
// from the SessionStore at the start of a call and saved at the end.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zonegate/internal/logging"
	"zonegate/internal/resolver"
	"zonegate/internal/types"
	"zonegate/internal/usage"
)

// DefaultMaxTransitions bounds the stages run for one call.
const DefaultMaxTransitions = 50

var tracer = otel.Tracer("zonegate/dialogue")

// Result is what a turn hands back to the transport.
type Result struct {
	SessionID       string                `json:"session_id"`
	Reply           string                `json:"reply"`
	PendingQuestion bool                  `json:"pending_question"`
	Options         []types.Option        `json:"options,omitempty"`
	TraceID         string                `json:"trace_id"`
	Language        string                `json:"language,omitempty"`
	Intent          types.Intent          `json:"intent,omitempty"`
	Decision        *types.Decision       `json:"decision,omitempty"`
	FleetDecisions  []types.FleetDecision `json:"fleet_decisions,omitempty"`
}

// StageEvent describes one executed stage.
type StageEvent struct {
	TraceID   string
	SessionID string
	Stage     Stage
	Next      Stage
	Started   time.Time
	Duration  time.Duration
	Err       error
}

// StageObserver receives every executed stage. Implementations must not block.
type StageObserver interface {
	ObserveStage(ev StageEvent)
}

// Deps are the collaborators a router needs.
type Deps struct {
	Gateway  Gateway
	Vehicles VehicleSource
	Zones    ZoneSource
	Policies PolicySource
	Sessions SessionStore
	Engine   Decider
}

// Router drives turns through the transition table.
type Router struct {
	gateway     Gateway
	vehicles    VehicleSource
	zones       ZoneSource
	policies    PolicySource
	sessions    SessionStore
	engine      Decider
	coordinator *Coordinator

	table  TransitionTable
	stages map[Stage]stageFunc

	maxTransitions  int
	defaultLanguage string
	mentionPolicy   resolver.MatchPolicy
	matchPolicy     resolver.MatchPolicy
	observer        StageObserver
	now             func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithTransitions replaces the transition table.
func WithTransitions(t TransitionTable) Option {
	return func(r *Router) { r.table = t }
}

// WithMaxTransitions sets the per-call stage ceiling.
func WithMaxTransitions(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxTransitions = n
		}
	}
}

// WithDefaultLanguage sets the language used when detection fails.
func WithDefaultLanguage(lang string) Option {
	return func(r *Router) {
		if lang != "" {
			r.defaultLanguage = lang
		}
	}
}

// WithMentionPolicy sets how a new car reference is compared with a carried car.
func WithMentionPolicy(p resolver.MatchPolicy) Option {
	return func(r *Router) { r.mentionPolicy = p }
}

// WithMatchPolicy sets how car references are resolved against the fleet.
func WithMatchPolicy(p resolver.MatchPolicy) Option {
	return func(r *Router) { r.matchPolicy = p }
}

// WithObserver reports every executed stage to o.
func WithObserver(o StageObserver) Option {
	return func(r *Router) { r.observer = o }
}

// WithClock overrides the clock stamped on turns.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// NewRouter validates the transition table and wires the stages.
func NewRouter(deps Deps, opts ...Option) (*Router, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("router: gateway is required")
	case deps.Vehicles == nil, deps.Zones == nil, deps.Policies == nil:
		return nil, errors.New("router: vehicle, zone and policy sources are required")
	case deps.Sessions == nil:
		return nil, errors.New("router: session store is required")
	case deps.Engine == nil:
		return nil, errors.New("router: decision engine is required")
	}

	r := &Router{
		gateway:         deps.Gateway,
		vehicles:        deps.Vehicles,
		zones:           deps.Zones,
		policies:        deps.Policies,
		sessions:        deps.Sessions,
		engine:          deps.Engine,
		coordinator:     NewCoordinator(deps.Gateway),
		table:           DefaultTransitions(),
		maxTransitions:  DefaultMaxTransitions,
		defaultLanguage: "en",
		mentionPolicy:   resolver.MatchNormalized,
		matchPolicy:     resolver.MatchSubstring,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := ValidateTransitions(r.table); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	r.stages = r.stageTable()
	for _, s := range AllStages {
		if s == StageEnd {
			continue
		}
		if _, ok := r.stages[s]; !ok {
			return nil, fmt.Errorf("router: no handler for stage %s", s)
		}
	}
	return r, nil
}

type traceKey struct{}

// WithTraceID attaches a correlation id to ctx. Turns started with ctx carry it.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceIDFromContext returns the id set by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func traceIDFor(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// Process runs a new turn for message.
func (r *Router) Process(ctx context.Context, sessionID, message string) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Field: "session_id", Message: "must not be empty"}
	}
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Field: "message", Message: "must not be empty"}
	}
	ctx = usage.WithSession(ctx, sessionID)

	state, err := r.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if state == nil {
		state = NewTurnState(sessionID)
		logging.Session("new session %s", sessionID)
	}
	state.BeginTurn(message, traceIDFor(ctx), r.now())

	if err := r.run(ctx, state, StageExtractIntent); err != nil {
		return nil, err
	}
	return r.finish(ctx, state)
}

// Answer resumes a paused turn with the option at index.
func (r *Router) Answer(ctx context.Context, sessionID string, index int) (*Result, error) {
	ctx = usage.WithSession(ctx, sessionID)
	state, err := r.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if state == nil {
		return nil, fmt.Errorf("answer %s: %w", sessionID, ErrSessionNotFound)
	}

	resumeAt, err := r.coordinator.Resume(state, index)
	if err != nil {
		return nil, err
	}
	state.TraceID = traceIDFor(ctx)
	state.UpdatedAt = r.now()

	if err := r.run(ctx, state, resumeAt); err != nil {
		return nil, err
	}
	return r.finish(ctx, state)
}

func (r *Router) finish(ctx context.Context, state *TurnState) (*Result, error) {
	if err := state.Validate(); err != nil {
		return nil, r.violation(state, StageEnd, StageNone, 0, err.Error())
	}
	if err := r.sessions.Save(ctx, state.SessionID, state); err != nil {
		return nil, fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	res := &Result{
		SessionID:       state.SessionID,
		Reply:           state.Reply,
		PendingQuestion: state.PendingQuestion,
		TraceID:         state.TraceID,
		Language:        state.Language,
		Intent:          state.Intent,
		Decision:        state.Decision,
		FleetDecisions:  state.FleetDecisions,
	}
	if state.PendingQuestion {
		res.Options = append([]types.Option(nil), state.DisambiguationOptions...)
	}
	return res, nil
}

// run executes stages starting at start until the turn halts.
func (r *Router) run(ctx context.Context, state *TurnState, start Stage) error {
	log := logging.WithRequestID(logging.CategoryRouting, state.TraceID).With("session_id", state.SessionID)
	timer := logging.StartTimer(logging.CategoryRouting, "turn "+state.TraceID)
	defer timer.Stop()

	current := start
	for steps := 1; ; steps++ {
		if steps > r.maxTransitions {
			return r.violation(state, current, state.NextStep, steps-1,
				fmt.Sprintf("exceeded %d stage transitions", r.maxTransitions))
		}
		if !current.Valid() || current == StageEnd {
			return r.violation(state, current, StageNone, steps, "cannot execute stage "+current.String())
		}

		state.NextStep = StageNone
		if err := r.runStage(ctx, state, current); err != nil {
			var v *RoutingInvariantViolation
			if errors.As(err, &v) && v.Steps == 0 {
				v.Steps = steps
			}
			log.Error("stage %s failed: %v", current, err)
			return err
		}

		next, halt, err := r.nextStage(current, state, steps)
		if err != nil {
			return err
		}
		if halt {
			log.Debug("halted after %s (%d step(s), pending=%t)", current, steps, state.PendingQuestion)
			return nil
		}
		log.Debug("%s -> %s", current, next)
		current = next
	}
}

// runStage executes one stage and folds its control-flow outcomes (not found,
// ambiguous) into the state. Anything else is returned.
func (r *Router) runStage(ctx context.Context, state *TurnState, stage Stage) (err error) {
	ctx, span := tracer.Start(ctx, "dialogue."+string(stage), trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.String("trace.id", state.TraceID),
		attribute.Int("turn", state.Turn),
	))
	started := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("next_step", string(state.NextStep)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if r.observer != nil {
			r.observer.ObserveStage(StageEvent{
				TraceID:   state.TraceID,
				SessionID: state.SessionID,
				Stage:     stage,
				Next:      state.NextStep,
				Started:   started,
				Duration:  time.Since(started),
				Err:       err,
			})
		}
	}()

	stageErr := r.stages[stage](ctx, state)
	if stageErr == nil {
		return nil
	}

	var nf *NotFoundError
	if errors.As(stageErr, &nf) {
		span.AddEvent("not_found", trace.WithAttributes(attribute.String("entity", nf.Entity)))
		logging.Routing("%s: %v", stage, nf)
		return r.terminate(ctx, state, nf.Message)
	}

	var amb *AmbiguousMatch
	if errors.As(stageErr, &amb) {
		span.AddEvent("ambiguous", trace.WithAttributes(attribute.Int("options", len(amb.Options))))
		return r.coordinator.Pause(ctx, state, amb.Kind, amb.Options)
	}
	return stageErr
}

// terminate ends the turn with a canned reply in the turn language.
func (r *Router) terminate(ctx context.Context, state *TurnState, message string) error {
	reply, err := r.gateway.Translate(ctx, message, state.Language)
	if err != nil {
		logging.RoutingWarn("translating terminal reply to %s failed, replying in English: %v", state.Language, err)
		reply = message
	}
	state.Reply = reply
	state.NextStep = StageEnd
	return nil
}

// nextStage applies the routing rules in priority order: an explicit end,
// then a pending question, then the explicit next step, and only after
// extraction the intent.
func (r *Router) nextStage(current Stage, state *TurnState, steps int) (Stage, bool, error) {
	if state.NextStep == StageEnd {
		if !r.table.Allows(current, StageEnd) {
			return StageNone, false, r.violation(state, current, StageEnd, steps, "transition not permitted")
		}
		return StageEnd, true, nil
	}
	if state.PendingQuestion {
		return StageNone, true, nil
	}

	next := state.NextStep
	if next == StageNone {
		if current != StageExtractIntent {
			return StageNone, false, r.violation(state, current, StageNone, steps, "stage did not set next_step")
		}
		next = dispatch(state.Intent)
	}
	if !r.table.Allows(current, next) {
		return StageNone, false, r.violation(state, current, next, steps, "transition not permitted")
	}
	return next, false, nil
}

func dispatch(intent types.Intent) Stage {
	if intent == types.IntentPolicyOnly {
		return StageResolveZone
	}
	return StageResolveCar
}

func (r *Router) violation(state *TurnState, stage, next Stage, steps int, reason string) error {
	v := &RoutingInvariantViolation{
		Steps:  steps,
		Stage:  stage,
		Next:   next,
		Reason: reason,
		Dump:   state.Snapshot(),
	}
	logging.RoutingError("%v (next=%s)", v, next)
	return v
}

// Table returns the transition table in use.
func (r *Router) Table() TransitionTable { return r.table }
