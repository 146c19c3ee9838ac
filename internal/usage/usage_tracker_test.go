package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "usage.json")
	tracker, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	// Keep the debounced save out of the way; Flush writes explicitly.
	tracker.saveDelay = time.Hour

	ctx := WithOperation(WithSession(context.Background(), "sess_1"), "extract_intent")
	tracker.Track(ctx, "openai", "gpt-4o-mini", 10, 5)
	tracker.Track(ctx, "openai", "gpt-4o-mini", 2, 3)

	stats := tracker.Stats()
	if stats.Total.Input != 12 || stats.Total.Output != 8 || stats.Total.Total != 20 || stats.Total.Calls != 2 {
		t.Fatalf("Total=%+v, want calls=2 input=12 output=8 total=20", stats.Total)
	}
	if got := stats.ByProvider["openai"]; got.Total != 20 {
		t.Fatalf("ByProvider[openai]=%+v, want total=20", got)
	}
	if got := stats.ByModel["gpt-4o-mini"]; got.Total != 20 {
		t.Fatalf("ByModel[gpt-4o-mini]=%+v, want total=20", got)
	}
	if got := stats.ByOperation["extract_intent"]; got.Calls != 2 {
		t.Fatalf("ByOperation[extract_intent]=%+v, want calls=2", got)
	}
	if got := stats.BySession["sess_1"]; got.Total != 20 {
		t.Fatalf("BySession[sess_1]=%+v, want total=20", got)
	}

	if err := tracker.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read usage file: %v", err)
	}
	var persisted Data
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal usage file: %v", err)
	}
	if persisted.Aggregate.Total.Total != 20 {
		t.Fatalf("persisted total=%d, want 20", persisted.Aggregate.Total.Total)
	}

	reopened, err := NewTracker(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Stats().ByOperation["extract_intent"]; got.Total != 20 {
		t.Fatalf("reloaded ByOperation=%+v, want total=20", got)
	}
}

func TestTracker_MemoryOnly(t *testing.T) {
	tracker, err := NewTracker("")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.Track(context.Background(), "gemini", "gemini-2.5-flash", 7, 1)
	if tracker.dirty || tracker.saveTimer != nil {
		t.Fatal("memory-only tracker scheduled a save")
	}
	if err := tracker.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stats := tracker.Stats()
	if got := stats.ByOperation[unknown]; got.Total != 8 {
		t.Fatalf("untagged call not counted as unknown: %+v", stats.ByOperation)
	}
}

func TestTracker_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	tracker, err := NewTracker(path)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if got := tracker.Stats().Total.Calls; got != 0 {
		t.Fatalf("calls=%d, want 0", got)
	}
}

func TestTracker_SessionBreakdownIsBounded(t *testing.T) {
	tracker, _ := NewTracker("")
	for i := 0; i < MaxSessions+5; i++ {
		tracker.Track(WithSession(context.Background(), fmt.Sprintf("s%d", i)), "openai", "m", 1, 0)
	}
	stats := tracker.Stats()
	if len(stats.BySession) != MaxSessions+1 {
		t.Fatalf("sessions=%d, want %d", len(stats.BySession), MaxSessions+1)
	}
	if got := stats.BySession[OtherSessions].Calls; got != 5 {
		t.Fatalf("other=%d, want 5", got)
	}
	// A session already counted keeps its own bucket.
	tracker.Track(WithSession(context.Background(), "s0"), "openai", "m", 1, 0)
	if got := tracker.Stats().BySession["s0"].Calls; got != 2 {
		t.Fatalf("s0 calls=%d, want 2", got)
	}
}

func TestTracker_StatsAreCopies(t *testing.T) {
	tracker, _ := NewTracker("")
	tracker.Track(context.Background(), "openai", "m", 1, 1)
	stats := tracker.Stats()
	stats.ByProvider["openai"] = TokenCounts{}
	if got := tracker.Stats().ByProvider["openai"].Total; got != 2 {
		t.Fatalf("mutating a snapshot changed the tracker: total=%d", got)
	}
}

func TestTracker_ContextHelpers(t *testing.T) {
	tracker, err := NewTracker("")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	if FromContext(context.Background()) != nil {
		t.Fatal("empty context returned a tracker")
	}
	ctx := NewContext(context.Background(), tracker)
	if got := FromContext(ctx); got != tracker {
		t.Fatalf("FromContext mismatch")
	}
	ctx = WithSession(WithOperation(ctx, "translate"), "abc")
	if OperationFrom(ctx) != "translate" || SessionFrom(ctx) != "abc" {
		t.Fatalf("op=%q session=%q", OperationFrom(ctx), SessionFrom(ctx))
	}
}
