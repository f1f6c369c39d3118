package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyBoard/internal/relay"
	"StudyBoard/internal/state"
	"StudyBoard/internal/syncer"
)

// memoryBackend merges like the reference server: append, sort by timestamp,
// bump the version.
type memoryBackend struct {
	mu       sync.Mutex
	ops      []state.Operation
	version  int64
	fetchErr error
}

func (b *memoryBackend) Sync(_ context.Context, env syncer.Envelope) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, env.Operations...)
	sort.SliceStable(b.ops, func(i, j int) bool {
		return state.MetaOf(b.ops[i]).Timestamp < state.MetaOf(b.ops[j]).Timestamp
	})
	b.version++
	return b.version, nil
}

func (b *memoryBackend) FetchState(context.Context, string) (syncer.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return syncer.State{}, b.fetchErr
	}
	return syncer.State{Operations: append([]state.Operation(nil), b.ops...), Version: b.version}, nil
}

func (b *memoryBackend) stored() []state.Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]state.Operation(nil), b.ops...)
}

type seqClock struct{ n atomic.Int64 }

func (c *seqClock) NowMillis() int64 { return 1_700_000_000_000 + c.n.Load() }
func (c *seqClock) NewID() string    { return fmt.Sprintf("op%d", c.n.Add(1)) }

func open(t *testing.T, hub *relay.MemoryHub, backend syncer.Backend, user string, clock state.Clock) *Session {
	return openWithDebounce(t, hub, backend, user, clock, 20*time.Millisecond)
}

func openWithDebounce(t *testing.T, hub *relay.MemoryHub, backend syncer.Backend, user string, clock state.Clock, debounce time.Duration) *Session {
	t.Helper()
	s, err := Open(context.Background(), Options{
		SessionID: "room",
		UserID:    user,
		Backend:   backend,
		Channel:   hub.Channel("room"),
		Clock:     clock,
		Debounce:  debounce,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func ids(ops []state.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, state.MetaOf(op).ID)
	}
	return out
}

func TestDrawThenEraseAcrossParticipants(t *testing.T) {
	hub := relay.NewMemoryHub()
	backend := &memoryBackend{}
	clock := &seqClock{}
	a := open(t, hub, backend, "userA", clock)
	b := open(t, hub, backend, "userB", clock)
	ctx := context.Background()

	draw, err := a.Draw(ctx, []state.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, 0xFFFF0000, 5)
	require.NoError(t, err)
	assert.Equal(t, "op1", draw.ID)
	assert.Equal(t, "userA", draw.UserID)

	require.Eventually(t, func() bool { return len(b.Visible()) == 1 }, time.Second, 5*time.Millisecond)
	got := b.Visible()[0].(*state.Draw)
	assert.Equal(t, state.Color(0xFFFF0000), got.Color)
	assert.Equal(t, []state.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}, got.Points)

	_, err = a.Erase(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, a.Visible())
	require.Eventually(t, func() bool { return len(b.Visible()) == 0 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(backend.stored()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"op1", "op2"}, ids(backend.stored()))
}

func TestOpenSeedsFromBackend(t *testing.T) {
	backend := &memoryBackend{
		ops: []state.Operation{
			&state.Draw{Meta: state.Meta{ID: "d1", UserID: "x", Timestamp: 1}, Points: []state.Point{{X: 1, Y: 1}}},
			&state.Erase{Meta: state.Meta{ID: "e1", UserID: "x", Timestamp: 2}, TargetIDs: []string{"d1"}},
			&state.Text{Meta: state.Meta{ID: "t1", UserID: "x", Timestamp: 3}, Text: "hi"},
		},
		version: 4,
	}
	var changes atomic.Int32
	s, err := Open(context.Background(), Options{
		SessionID: "room",
		UserID:    "me",
		Backend:   backend,
		Channel:   relay.NewMemoryHub().Channel("room"),
		OnChange:  func([]state.Operation) { changes.Add(1) },
	})
	require.NoError(t, err)
	defer s.Close(context.Background())

	assert.Equal(t, []string{"t1"}, ids(s.Visible()))
	assert.Equal(t, []string{"e1", "t1"}, ids(s.Operations()))
	assert.Equal(t, int64(4), s.Version())
	assert.Equal(t, int32(1), changes.Load())
}

func TestOpenFailureIsReturned(t *testing.T) {
	backend := &memoryBackend{fetchErr: errors.New("offline")}
	_, err := Open(context.Background(), Options{
		SessionID: "room",
		UserID:    "me",
		Backend:   backend,
		Channel:   relay.NewMemoryHub().Channel("room"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
}

func TestOpenValidatesOptions(t *testing.T) {
	_, err := Open(context.Background(), Options{UserID: "me", Backend: &memoryBackend{}, Channel: relay.NewMemoryHub().Channel("r")})
	assert.Error(t, err)
	_, err = Open(context.Background(), Options{SessionID: "r", UserID: "me"})
	assert.Error(t, err)
}

func TestSubmitDuplicateIsIgnored(t *testing.T) {
	hub := relay.NewMemoryHub()
	backend := &memoryBackend{}
	s := openWithDebounce(t, hub, backend, "me", &seqClock{}, time.Hour)
	ctx := context.Background()

	op := &state.Clear{Meta: state.Meta{ID: "c1", UserID: "me", Timestamp: 5}}
	require.NoError(t, s.Submit(ctx, op))
	require.NoError(t, s.Submit(ctx, op))
	assert.Equal(t, 1, s.Pending())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, backend.stored(), 1)
	assert.Equal(t, syncer.StatusIdle, s.SyncStatus())
}

func TestCloseFlushesAndRejectsSubmits(t *testing.T) {
	hub := relay.NewMemoryHub()
	backend := &memoryBackend{}
	s, err := Open(context.Background(), Options{
		SessionID: "room",
		UserID:    "me",
		Backend:   backend,
		Channel:   hub.Channel("room"),
		Debounce:  time.Hour,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Text(ctx, "∑ notes", state.Point{X: 4, Y: 20}, 16, state.DefaultColor)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	require.Len(t, backend.stored(), 1)
	assert.Equal(t, "∑ notes", backend.stored()[0].(*state.Text).Text)

	_, err = s.Clear(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClearFromPeerWipesCanvas(t *testing.T) {
	hub := relay.NewMemoryHub()
	backend := &memoryBackend{}
	clock := &seqClock{}
	a := open(t, hub, backend, "userA", clock)
	b := open(t, hub, backend, "userB", clock)
	ctx := context.Background()

	_, err := a.Text(ctx, "hello", state.Point{X: 1, Y: 2}, 0, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.Visible()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = b.Clear(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.Visible()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, a.Operations(), 1)
}

func TestSubmitRacingCloseIsFlushedOrRejected(t *testing.T) {
	backend := &memoryBackend{}
	s := openWithDebounce(t, relay.NewMemoryHub(), backend, "me", &seqClock{}, time.Hour)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		accepted []string
		wg       sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				op, err := s.Draw(ctx, []state.Point{{X: 1, Y: 1}}, state.DefaultColor, 2)
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
				mu.Lock()
				accepted = append(accepted, op.ID)
				mu.Unlock()
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, s.Close(ctx))
	wg.Wait()

	assert.ElementsMatch(t, accepted, ids(backend.stored()))
	assert.Zero(t, s.Pending())
}
