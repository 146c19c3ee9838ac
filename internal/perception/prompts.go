package perception

import (
	"fmt"
	"strings"

	"zonegate/internal/types"
)

const (
	languageSystemPrompt    = "You are a language detection assistant. Respond only with the ISO 639-1 language code."
	extractionSystemPrompt  = "You are a precise intent extraction assistant. Always respond with valid JSON only."
	questionSystemPrompt    = "You are a helpful assistant. Be concise and clear."
	explanationSystemPrompt = "You are a helpful assistant explaining pollution zone eligibility. Be clear, concise, and friendly. " +
		"The eligibility decision has already been made by a rule engine; never change, soften or contradict it."
	translateSystemPrompt = "You are a translation assistant. Translate concisely and accurately."
)

func languagePrompt(message string) string {
	return fmt.Sprintf(`Detect the language of the following user message and return ONLY the ISO 639-1 two-letter language code.

Common codes: en (English), es (Spanish), fr (French), nl (Dutch), de (German), it (Italian), pt (Portuguese).

User message: %q

Respond with ONLY the two-letter language code, nothing else.`, message)
}

func extractionPrompt(message string) string {
	return fmt.Sprintf(`You are an intent classifier for a vehicle pollution zone eligibility service.

Analyze the user's message and extract:
1. intent: one of "single_car", "fleet", or "policy_only"
   - single_car: the user asks about ONE specific car
   - fleet: the user asks about ALL or SEVERAL of their cars ("which of my cars", "are any of my cars")
   - policy_only: the user only asks about zone rules, no specific car
2. car_identifier: plate number or identifying phrase (null if not mentioned)
3. city: city name (null if not mentioned)
4. zone_phrase: phrase describing the zone, e.g. "city center", "logistics zone" (null if not mentioned)

User message: %q

Respond with ONLY a JSON object matching this schema:
%s`, message, ExtractionSchema())
}

func questionPrompt(kind types.PendingType, options []types.Option, lang string) string {
	var list strings.Builder
	for _, o := range options {
		fmt.Fprintf(&list, "%d. %s\n", o.Index+1, o.Label)
	}
	intro := "Multiple pollution zones match the user's query. Generate a SHORT question (one sentence) asking them to specify which zone."
	heading := "Matching zones"
	if kind == types.PendingCar {
		intro = "The user has several cars on file. Generate a SHORT question (one sentence) asking which car they are asking about."
		heading = "Available cars"
	}
	return fmt.Sprintf(`%s

%s:
%s
Respond in the language with ISO 639-1 code: %s
Generate ONLY the question text, no extra formatting.`, intro, heading, list.String(), lang)
}

// ExplainRequest carries the facts an explanation must be grounded in.
type ExplainRequest struct {
	Intent   types.Intent
	Language string
	Car      *types.Car
	Zone     *types.Zone
	Policy   *types.Policy
	Decision *types.Decision
	Fleet    []types.FleetDecision
}

func explanationPrompt(req ExplainRequest) string {
	zoneName, city, zoneType := "Unknown", "Unknown", "Unknown"
	if req.Zone != nil {
		zoneName, city, zoneType = req.Zone.Name, req.Zone.City, string(req.Zone.Type)
	}

	var b strings.Builder
	switch req.Intent {
	case types.IntentPolicyOnly:
		b.WriteString("Explain the pollution zone policy to the user in a clear, friendly way.\n\n")
		fmt.Fprintf(&b, "Zone: %s\nCity: %s\nType: %s\n", zoneName, city, zoneType)
		if req.Policy != nil {
			fmt.Fprintf(&b, "Policy effective from: %s\nRules:\n", req.Policy.EffectiveFrom.Format("2006-01-02"))
			for _, r := range req.Policy.Rules {
				fmt.Fprintf(&b, "- %s: banned\n", r.Condition)
			}
			fmt.Fprintf(&b, "Exemptions: %s\n", joinOr(req.Policy.Exemptions, "None"))
		}
		fmt.Fprintf(&b, "\nIMPORTANT: Respond in the language with ISO 639-1 code: %s\n", req.Language)
		b.WriteString("Provide a 2-3 sentence summary suitable for a chatbot response. ")
		b.WriteString("Then add a short note that they can get an eligibility check for their own vehicle by providing its plate number.")

	case types.IntentFleet:
		var allowed, banned, unknown []string
		for _, fd := range req.Fleet {
			switch fd.Decision.Allowed {
			case types.AllowedYes:
				allowed = append(allowed, fd.Plate)
			case types.AllowedNo:
				banned = append(banned, fd.Plate)
			default:
				unknown = append(unknown, fmt.Sprintf("%s (missing %s)", fd.Plate, strings.Join(fd.Decision.MissingFields, ", ")))
			}
		}
		b.WriteString("Summarize the fleet eligibility check for the user.\n\n")
		fmt.Fprintf(&b, "Zone: %s\nTotal cars checked: %d\n", zoneName, len(req.Fleet))
		fmt.Fprintf(&b, "Allowed: %d (%s)\n", len(allowed), joinOr(allowed, "none"))
		fmt.Fprintf(&b, "Not allowed: %d (%s)\n", len(banned), joinOr(banned, "none"))
		fmt.Fprintf(&b, "Unknown: %d (%s)\n", len(unknown), joinOr(unknown, "none"))
		fmt.Fprintf(&b, "\nIMPORTANT: Respond in the language with ISO 639-1 code: %s\n", req.Language)
		b.WriteString("Provide a clear summary suitable for a chatbot response. List cars by category and mention why if relevant.")

	default:
		d := req.Decision
		if d == nil {
			d = &types.Decision{Allowed: types.AllowedUnknown}
		}
		carLine := "Unknown"
		if req.Car != nil {
			carLine = req.Car.Label()
		}
		b.WriteString("Explain the eligibility decision to the user clearly and concisely.\n\n")
		fmt.Fprintf(&b, "Car: %s\nZone: %s\n", carLine, zoneName)
		fmt.Fprintf(&b, "Allowed: %s\nReason: %s\n", d.Allowed, d.ReasonCode)
		fmt.Fprintf(&b, "Factors: %s\n", joinOr(d.Factors, "None"))
		fmt.Fprintf(&b, "Missing fields: %s\n", joinOr(d.MissingFields, "None"))
		fmt.Fprintf(&b, "Next actions: %s\n", joinOr(d.NextActions, "None"))
		fmt.Fprintf(&b, "\nIMPORTANT: Respond in the language with ISO 639-1 code: %s\n", req.Language)
		b.WriteString("Provide a clear 2-4 sentence explanation suitable for a chatbot response. If there are missing fields or next actions, mention them.")
	}
	return b.String()
}

func translatePrompt(message, lang string) string {
	return fmt.Sprintf(`Translate the following message to the language with ISO 639-1 code: %s

Message: %q

Respond with ONLY the translated message, nothing else.`, lang, message)
}

// repairPrompt re-asks for a response after a parse failure, quoting the
// exact error and the rejected output.
func repairPrompt(original, previous string, parseErr error) string {
	return fmt.Sprintf(`%s

Your previous response could not be parsed.
Previous response: %s
Error: %s

Respond again with ONLY the requested output, with no additional text or markdown.`,
		original, truncate(previous, 500), truncate(parseErr.Error(), 200))
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
