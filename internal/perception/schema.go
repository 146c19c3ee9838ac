package perception

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"zonegate/internal/types"
)

// extractionPayload is the wire shape of an intent extraction response.
type extractionPayload struct {
	Intent        string  `json:"intent" jsonschema:"required,enum=single_car,enum=fleet,enum=policy_only,description=single_car: one specific car; fleet: all or several of the user's cars; policy_only: zone rules without a car"`
	CarIdentifier *string `json:"car_identifier" jsonschema:"required,nullable,description=Plate number or identifying phrase; null when not mentioned"`
	City          *string `json:"city" jsonschema:"required,nullable,description=City name; null when not mentioned"`
	ZonePhrase    *string `json:"zone_phrase" jsonschema:"required,nullable,description=Phrase describing the zone such as city center; null when not mentioned"`
}

var extractionSchema = sync.OnceValue(func() string {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&extractionPayload{})
	s.Version = ""
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("extraction schema: %v", err))
	}
	return string(data)
})

// ExtractionSchema returns the JSON schema extraction responses must satisfy.
func ExtractionSchema() string { return extractionSchema() }

// decodeStrict decodes exactly one JSON value into v, rejecting unknown
// fields and trailing data.
func decodeStrict(text string, v any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Field: "json", Message: err.Error()}
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return &ValidationError{Field: "json", Message: "unexpected data after the JSON object"}
	}
	return nil
}

// parseExtraction validates a raw extraction response.
func parseExtraction(text string) (types.Slots, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Slots{}, &ValidationError{Field: "json", Message: "response is not a JSON object"}
	}

	var p extractionPayload
	if err := decodeStrict(string(trimmed), &p); err != nil {
		return types.Slots{}, err
	}
	intent, err := types.ParseIntent(strings.TrimSpace(p.Intent))
	if err != nil {
		return types.Slots{}, &ValidationError{Field: "intent", Message: err.Error()}
	}
	return types.Slots{
		Intent:        intent,
		CarIdentifier: deref(p.CarIdentifier),
		City:          deref(p.City),
		ZonePhrase:    deref(p.ZonePhrase),
	}, nil
}

// parseLanguage accepts a bare ISO 639-1 code, tolerating case, quotes and
// trailing punctuation.
func parseLanguage(text string) (string, error) {
	code := strings.ToLower(strings.Trim(strings.TrimSpace(text), "\"'`.!\n "))
	if len(code) != 2 || !isASCIILetter(code[0]) || !isASCIILetter(code[1]) {
		return "", &ValidationError{Field: "language", Message: fmt.Sprintf("expected a two-letter ISO 639-1 code, got %q", truncate(text, 40))}
	}
	return code, nil
}

// parseProse accepts any non-empty text.
func parseProse(text string) (string, error) {
	s := strings.TrimSpace(text)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return "", &ValidationError{Field: "text", Message: "empty response"}
	}
	return s, nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z')
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return ""
	}
	return v
}
