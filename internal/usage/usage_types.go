package usage

// Data is the root structure written to the usage file.
type Data struct {
	Version   string `json:"version"`
	Aggregate Stats  `json:"aggregate"`
}

// Stats holds token counters broken down by provider, model, gateway
// operation and session.
type Stats struct {
	Total       TokenCounts            `json:"total"`
	ByProvider  map[string]TokenCounts `json:"by_provider"`
	ByModel     map[string]TokenCounts `json:"by_model"`
	ByOperation map[string]TokenCounts `json:"by_operation"` // extract_intent, translate, ...
	BySession   map[string]TokenCounts `json:"by_session"`
}

// TokenCounts holds call and token sums.
type TokenCounts struct {
	Calls  int64 `json:"calls"`
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Calls++
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}

func newStats() Stats {
	return Stats{
		ByProvider:  make(map[string]TokenCounts),
		ByModel:     make(map[string]TokenCounts),
		ByOperation: make(map[string]TokenCounts),
		BySession:   make(map[string]TokenCounts),
	}
}

func (s *Stats) ensureMaps() {
	if s.ByProvider == nil {
		s.ByProvider = make(map[string]TokenCounts)
	}
	if s.ByModel == nil {
		s.ByModel = make(map[string]TokenCounts)
	}
	if s.ByOperation == nil {
		s.ByOperation = make(map[string]TokenCounts)
	}
	if s.BySession == nil {
		s.BySession = make(map[string]TokenCounts)
	}
}
