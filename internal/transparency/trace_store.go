package transparency

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"zonegate/internal/dialogue"
)

// DefaultTraceHistory is the number of traces kept when none is configured.
const DefaultTraceHistory = 1000

// StageRecord is one executed stage within a trace.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Next     string        `json:"next"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Trace is the stage history of one request.
type Trace struct {
	TraceID   string        `json:"trace_id"`
	SessionID string        `json:"session_id"`
	Started   time.Time     `json:"started"`
	Stages    []StageRecord `json:"stages"`
}

// Path returns the stage names joined with arrows.
func (t Trace) Path() string {
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = s.Stage
	}
	return strings.Join(names, " -> ")
}

// Summary returns a one-line description suitable for logs.
func (t Trace) Summary() string {
	var total time.Duration
	for _, s := range t.Stages {
		total += s.Duration
	}
	return fmt.Sprintf("[%s] %s (%d stage(s), %s)", t.TraceID, t.Path(), len(t.Stages), total.Round(time.Microsecond))
}

// TraceStore keeps the most recent traces in memory, evicting the oldest
// once full. It implements dialogue.StageObserver and fans every event out
// to registered observers.
type TraceStore struct {
	mu        sync.RWMutex
	traces    map[string]*Trace
	order     []string
	max       int
	observers map[int]dialogue.StageObserver
	nextID    int
}

var _ dialogue.StageObserver = (*TraceStore)(nil)

// NewTraceStore creates a store holding at most max traces.
func NewTraceStore(max int) *TraceStore {
	if max <= 0 {
		max = DefaultTraceHistory
	}
	return &TraceStore{
		traces:    make(map[string]*Trace),
		max:       max,
		observers: make(map[int]dialogue.StageObserver),
	}
}

// RecordOf converts a router event into its stored form.
func RecordOf(ev dialogue.StageEvent) StageRecord {
	rec := StageRecord{
		Stage:    ev.Stage.String(),
		Next:     ev.Next.String(),
		Started:  ev.Started,
		Duration: ev.Duration,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

// ObserveStage records ev under its trace id.
func (s *TraceStore) ObserveStage(ev dialogue.StageEvent) {
	rec := RecordOf(ev)

	s.mu.Lock()
	t, ok := s.traces[ev.TraceID]
	if !ok {
		t = &Trace{TraceID: ev.TraceID, SessionID: ev.SessionID, Started: ev.Started}
		s.traces[ev.TraceID] = t
		s.order = append(s.order, ev.TraceID)
		for len(s.order) > s.max {
			delete(s.traces, s.order[0])
			s.order = s.order[1:]
		}
	}
	t.Stages = append(t.Stages, rec)
	observers := make([]dialogue.StageObserver, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o.ObserveStage(ev)
	}
}

// AddObserver registers o for every future event. The returned func
// unregisters it.
func (s *TraceStore) AddObserver(o dialogue.StageObserver) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = o
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Get returns a copy of the trace with the given id.
func (s *TraceStore) Get(traceID string) (Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[traceID]
	if !ok {
		return Trace{}, false
	}
	cp := *t
	cp.Stages = append([]StageRecord(nil), t.Stages...)
	return cp, true
}

// Recent returns up to n traces, newest first.
func (s *TraceStore) Recent(n int) []Trace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.order) {
		n = len(s.order)
	}
	out := make([]Trace, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		t := s.traces[s.order[i]]
		cp := *t
		cp.Stages = append([]StageRecord(nil), t.Stages...)
		out = append(out, cp)
	}
	return out
}

// Len returns the number of stored traces.
func (s *TraceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// ObserverFunc adapts a function to dialogue.StageObserver.
type ObserverFunc func(dialogue.StageEvent)

// ObserveStage calls f(ev).
func (f ObserverFunc) ObserveStage(ev dialogue.StageEvent) { f(ev) }
