package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"zonegate/internal/dialogue"
	"zonegate/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(ttl)
	s.now = clock.now
	return s, clock
}

func TestMemoryStore_LoadUnknown(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	st, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestMemoryStore_SaveLoadCopies(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	ctx := context.Background()

	st := dialogue.NewTurnState("s1")
	st.City = "Amsterdam"
	st.SelectedCar = &types.Car{ID: "car_001", Plate: "AB-123-CD"}
	require.NoError(t, s.Save(ctx, "s1", st))

	st.City = "mutated after save"
	st.SelectedCar.Plate = "mutated"

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Amsterdam", got.City)
	assert.Equal(t, "AB-123-CD", got.SelectedCar.Plate)

	got.City = "mutated after load"
	again, _ := s.Load(ctx, "s1")
	assert.Equal(t, "Amsterdam", again.City)
}

func TestMemoryStore_SaveNil(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	assert.Error(t, s.Save(context.Background(), "s1", nil))
}

func TestMemoryStore_Expiry(t *testing.T) {
	s, clock := newTestStore(time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "old", dialogue.NewTurnState("old")))
	clock.advance(30 * time.Minute)
	require.NoError(t, s.Save(ctx, "new", dialogue.NewTurnState("new")))
	clock.advance(45 * time.Minute)

	st, err := s.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, st, "session idle for 75m must be gone")

	st, err = s.Load(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, st)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Sweep(t *testing.T) {
	s, clock := newTestStore(time.Minute)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, id, dialogue.NewTurnState(id)))
	}
	clock.advance(2 * time.Minute)
	require.NoError(t, s.Save(ctx, "d", dialogue.NewTurnState("d")))

	assert.Equal(t, 3, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	s, clock := newTestStore(0)
	require.NoError(t, s.Save(context.Background(), "a", dialogue.NewTurnState("a")))
	clock.advance(24 * 365 * time.Hour)
	assert.Equal(t, 0, s.Sweep())
	st, _ := s.Load(context.Background(), "a")
	assert.NotNil(t, st)
}

func TestMemoryStore_RunStopsOnCancel(t *testing.T) {
	s, _ := newTestStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemoryStore_ConcurrentSessions(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			st := dialogue.NewTurnState(id)
			st.Turn = i
			_ = s.Save(ctx, id, st)
			_, _ = s.Load(ctx, id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, s.Len())
}
