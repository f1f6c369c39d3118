// Package server is the reference study-room backend: durable whiteboard
// state behind the sync endpoints plus the per-session broadcast socket.
package server

import (
	"context"
	"errors"
	"sort"
	"time"

	"StudyBoard/internal/codec"
)

// ErrNotFound is returned for a session that has never been synced.
var ErrNotFound = errors.New("whiteboard not found")

// State is the stored copy of one whiteboard.
type State struct {
	SessionID  string
	Operations []codec.WireOperation
	Version    int64
	UpdatedAt  time.Time
	UpdatedBy  string
}

// Store persists whiteboards. Sync merges ops into the session, creating it
// when missing, and returns the new version.
type Store interface {
	Sync(ctx context.Context, sessionID, userID string, ops []codec.WireOperation, clientVersion int64) (int64, error)
	State(ctx context.Context, sessionID string) (State, error)
	Close() error
}

// merge appends incoming to current and orders the result by timestamp.
// Equal timestamps keep their arrival order. Operations are stored as
// received, unknown types included.
func merge(current, incoming []codec.WireOperation) []codec.WireOperation {
	out := make([]codec.WireOperation, 0, len(current)+len(incoming))
	out = append(out, current...)
	out = append(out, incoming...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
