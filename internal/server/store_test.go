package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyBoard/internal/codec"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func wire(id string, ts int64) codec.WireOperation {
	return codec.WireOperation{
		Type:      "clear",
		Data:      map[string]any{"id": id},
		Timestamp: ts,
		UserID:    "u",
	}
}

func storedIDs(ops []codec.WireOperation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i], _ = op.Data["id"].(string)
	}
	return out
}

func TestSQLiteStoreMissingSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.State(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreCreatesAndMerges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.Sync(ctx, "room", "alice", []codec.WireOperation{wire("b", 20), wire("a", 10)}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// A stale client version is accepted.
	v, err = store.Sync(ctx, "room", "bob", []codec.WireOperation{wire("c", 15), wire("d", 20)}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	st, err := store.State(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Version)
	assert.Equal(t, "bob", st.UpdatedBy)
	assert.False(t, st.UpdatedAt.IsZero())
	// Stable: "b" arrived before "d" and both have timestamp 20.
	assert.Equal(t, []string{"a", "c", "b", "d"}, storedIDs(st.Operations))
}

func TestSQLiteStoreEmptySyncBumpsVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	v, err := store.Sync(ctx, "room", "alice", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	st, err := store.State(ctx, "room")
	require.NoError(t, err)
	assert.NotNil(t, st.Operations)
	assert.Empty(t, st.Operations)
}

func TestSQLiteStoreKeepsUnknownTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	laser := codec.WireOperation{Type: "laser", Data: map[string]any{"id": "l1", "x": 3.5}, Timestamp: 1, UserID: "u"}
	_, err := store.Sync(ctx, "room", "u", []codec.WireOperation{laser}, 0)
	require.NoError(t, err)

	st, err := store.State(ctx, "room")
	require.NoError(t, err)
	require.Len(t, st.Operations, 1)
	assert.Equal(t, "laser", st.Operations[0].Type)
	assert.Equal(t, 3.5, st.Operations[0].Data["x"])
}

func TestSQLiteStoreSessionsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Sync(ctx, "one", "u", []codec.WireOperation{wire("a", 1)}, 0)
	require.NoError(t, err)
	_, err = store.Sync(ctx, "two", "u", []codec.WireOperation{wire("b", 1)}, 0)
	require.NoError(t, err)

	st, err := store.State(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, storedIDs(st.Operations))
	assert.Equal(t, int64(1), st.Version)
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	current := make([]codec.WireOperation, 1, 4)
	current[0] = wire("x", 5)
	out := merge(current, []codec.WireOperation{wire("y", 1)})
	assert.Equal(t, []string{"y", "x"}, storedIDs(out))
	assert.Equal(t, "x", current[0].Data["id"])
}
