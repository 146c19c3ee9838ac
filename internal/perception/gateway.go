package perception

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"zonegate/internal/logging"
	"zonegate/internal/types"
	"zonegate/internal/usage"
)

// Gateway issues the four dialogue requests (plus translation of canned
// replies) and enforces the repair-then-fallback discipline on every one.
//
// Per operation the gateway makes at most four model calls: primary, one
// primary repair, fallback, one fallback repair. A transport failure skips
// the repair for that profile.
type Gateway struct {
	primary  Profile
	fallback Profile
	usage    *usage.Tracker
}

// NewGateway creates a gateway over two profiles. A zero fallback disables
// the fallback stage.
func NewGateway(primary, fallback Profile) *Gateway {
	return &Gateway{primary: primary, fallback: fallback}
}

// WithUsage makes every model call report its token usage to t.
func (g *Gateway) WithUsage(t *usage.Tracker) *Gateway {
	g.usage = t
	return g
}

var tracer = otel.Tracer("zonegate/perception")

// DetectLanguage classifies message into an ISO 639-1 code.
func (g *Gateway) DetectLanguage(ctx context.Context, message string) (string, error) {
	return generate(ctx, g, "detect_language", request{
		system: languageSystemPrompt,
		user:   languagePrompt(message),
	}, parseLanguage)
}

// ExtractIntent extracts the intent and slots of message.
func (g *Gateway) ExtractIntent(ctx context.Context, message string) (types.Slots, error) {
	return generate(ctx, g, "extract_intent", request{
		system: extractionSystemPrompt,
		user:   extractionPrompt(message),
		schema: ExtractionSchema(),
	}, parseExtraction)
}

// MakeDisambiguationQuestion phrases a clarifying question over options in lang.
func (g *Gateway) MakeDisambiguationQuestion(ctx context.Context, kind types.PendingType, options []types.Option, lang string) (string, error) {
	return generate(ctx, g, "make_disambiguation_question", request{
		system: questionSystemPrompt,
		user:   questionPrompt(kind, options, lang),
	}, parseProse)
}

// ComposeExplanation renders an explanation grounded in an already computed
// decision, fleet summary or policy.
func (g *Gateway) ComposeExplanation(ctx context.Context, req ExplainRequest) (string, error) {
	return generate(ctx, g, "compose_explanation", request{
		system: explanationSystemPrompt,
		user:   explanationPrompt(req),
	}, parseProse)
}

// Translate renders a canned English reply in lang. English passes through
// without a model call.
func (g *Gateway) Translate(ctx context.Context, message, lang string) (string, error) {
	if lang == "" || lang == "en" {
		return message, nil
	}
	return generate(ctx, g, "translate", request{
		system: translateSystemPrompt,
		user:   translatePrompt(message, lang),
	}, parseProse)
}

type request struct {
	system string
	user   string
	schema string // optional, used by SchemaClient providers
}

func generate[T any](ctx context.Context, g *Gateway, op string, req request, parse func(string) (T, error)) (T, error) {
	var zero T
	ctx, span := tracer.Start(ctx, "gateway."+op)
	defer span.End()
	if g.usage != nil {
		ctx = usage.NewContext(ctx, g.usage)
	}
	ctx = usage.WithOperation(ctx, op)

	timer := logging.StartTimer(logging.CategoryPerception, op)
	defer timer.StopWithThreshold(10 * time.Second)

	genErr := &GenerationError{Op: op}
	for _, p := range []Profile{g.primary, g.fallback} {
		if p.Client == nil {
			continue
		}
		v, err := attempt(ctx, p, req, parse, genErr)
		if err == nil {
			span.SetAttributes(
				attribute.String("llm.profile", p.String()),
				attribute.Int("llm.failed_attempts", len(genErr.Attempts)),
			)
			return v, nil
		}
		logging.PerceptionWarn("%s: profile %s failed: %v", op, p, err)
	}

	logging.PerceptionError("%s: %v", op, genErr)
	span.RecordError(genErr)
	span.SetStatus(codes.Error, "generation failed")
	return zero, genErr
}

// attempt runs one profile: call, local cleanup, one repair re-prompt.
func attempt[T any](ctx context.Context, p Profile, req request, parse func(string) (T, error), genErr *GenerationError) (T, error) {
	var zero T

	out, err := call(ctx, p.Client, req.system, req.user, req.schema)
	if err != nil {
		err = fmt.Errorf("%s: %w", p, err)
		genErr.record(p.String(), false, err)
		return zero, err
	}
	v, perr := parseLenient(out, parse)
	if perr == nil {
		return v, nil
	}
	genErr.record(p.String(), false, perr)
	logging.PerceptionDebug("parse failed on %s, requesting repair: %v", p, perr)

	repaired, err := call(ctx, p.Client, req.system, repairPrompt(req.user, out, perr), req.schema)
	if err != nil {
		err = fmt.Errorf("%s repair: %w", p, err)
		genErr.record(p.String(), true, err)
		return zero, err
	}
	v, perr = parseLenient(repaired, parse)
	if perr != nil {
		genErr.record(p.String(), true, perr)
		return zero, perr
	}
	return v, nil
}

func call(ctx context.Context, c LLMClient, system, user, schema string) (string, error) {
	if sc, ok := c.(SchemaClient); ok && schema != "" {
		return sc.CompleteWithSchema(ctx, system, user, schema)
	}
	return c.CompleteWithSystem(ctx, system, user)
}

// parseLenient parses raw, then each locally cleaned variant. The error of the
// first cleaned variant is reported since it is the most specific.
func parseLenient[T any](raw string, parse func(string) (T, error)) (T, error) {
	var zero T
	v, err := parse(raw)
	if err == nil {
		return v, nil
	}
	firstErr := err
	for i, c := range cleanCandidates(raw) {
		v, err = parse(c)
		if err == nil {
			return v, nil
		}
		if i == 0 {
			firstErr = err
		}
	}
	return zero, firstErr
}
