// Package usage records language model token consumption per provider,
// model, gateway operation and session.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zonegate/internal/logging"
)

const (
	dataVersion = "1.0"

	// MaxSessions bounds the per-session breakdown; later sessions are
	// counted under OtherSessions.
	MaxSessions   = 1000
	OtherSessions = "other"

	unknown = "unknown"
)

type (
	trackerKey   struct{}
	operationKey struct{}
	sessionKey   struct{}
)

// Tracker aggregates usage events in memory and, when created with a file
// path, persists them with a debounced save.
type Tracker struct {
	mu        sync.Mutex
	data      Data
	filePath  string
	dirty     bool
	saveTimer *time.Timer
	saveDelay time.Duration
}

// NewTracker creates a tracker. An empty path keeps usage in memory only.
// An unreadable usage file is logged and replaced on the next save.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{
		filePath:  path,
		saveDelay: 5 * time.Second,
		data:      Data{Version: dataVersion, Aggregate: newStats()},
	}
	if path == "" {
		return t, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}
	if err := t.Load(); err != nil {
		logging.PerceptionWarn("usage file %s unreadable, starting empty: %v", path, err)
	}
	return t, nil
}

// Load reads the usage file. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filePath == "" {
		return nil
	}

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	data.Aggregate.ensureMaps()
	t.data = data
	return nil
}

// Flush writes pending changes immediately and cancels the scheduled save.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saveTimer != nil {
		t.saveTimer.Stop()
		t.saveTimer = nil
	}
	if !t.dirty || t.filePath == "" {
		return nil
	}
	if err := t.saveLocked(); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0644)
}

// Track records one completed model call. Operation and session come from ctx.
func (t *Tracker) Track(ctx context.Context, provider, model string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.Add(input, output)
	addToMap(agg.ByProvider, orUnknown(provider), input, output)
	addToMap(agg.ByModel, orUnknown(model), input, output)
	addToMap(agg.ByOperation, orUnknown(OperationFrom(ctx)), input, output)

	session := orUnknown(SessionFrom(ctx))
	if _, seen := agg.BySession[session]; !seen && len(agg.BySession) >= MaxSessions {
		session = OtherSessions
	}
	addToMap(agg.BySession, session, input, output)

	logging.PerceptionDebug("usage: %s/%s op=%s in=%d out=%d", provider, model, OperationFrom(ctx), input, output)

	if t.filePath == "" || t.dirty {
		return
	}
	t.dirty = true
	t.saveTimer = time.AfterFunc(t.saveDelay, func() {
		if err := t.Flush(); err != nil {
			logging.PerceptionWarn("usage save failed: %v", err)
		}
	})
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	stats.BySession = copyTokenCountsMap(stats.BySession)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithOperation tags ctx with the gateway operation being performed.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation tag of ctx.
func OperationFrom(ctx context.Context) string {
	op, _ := ctx.Value(operationKey{}).(string)
	return op
}

// WithSession tags ctx with the dialogue session on whose behalf calls are made.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session tag of ctx.
func SessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
