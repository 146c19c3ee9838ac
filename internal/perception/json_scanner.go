package perception

import "strings"

// findJSONCandidates scans the input string for top-level JSON object candidates.
// It handles nested braces and string escaping to correctly identify boundaries.
//
// It is safe to iterate bytes for ASCII delimiters ({, }, ", \) because UTF-8
// guarantees that ASCII bytes never appear inside a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			// Quotes outside an object are prose, not JSON strings.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

// stripFences removes markdown code fences around a model response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string (```json).
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// cleanCandidates returns the local repairs to try, in order, before a
// response is sent back to the model: the fenceless text and every embedded
// top-level JSON object.
func cleanCandidates(raw string) []string {
	seen := map[string]bool{raw: true}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	stripped := stripFences(raw)
	add(stripped)
	for _, c := range findJSONCandidates(stripped) {
		add(c)
	}
	return out
}
