// Package syncer reconciles the optimistic local log with the backend's
// versioned copy of a whiteboard.
package syncer

import (
	"context"
	"fmt"

	"StudyBoard/internal/codec"
	"StudyBoard/internal/state"
)

// Envelope is one batch submitted to the backend. Version is the last
// version the client saw acknowledged.
type Envelope struct {
	SessionID  string
	Operations []state.Operation
	Version    int64
}

// State is the backend's stored copy of a whiteboard.
type State struct {
	Operations []state.Operation
	Version    int64
}

// Backend is the durable side of the protocol.
type Backend interface {
	Sync(ctx context.Context, env Envelope) (version int64, err error)
	FetchState(ctx context.Context, sessionID string) (State, error)
}

// SyncRequest is the JSON body of POST /peer/whiteboard/sync.
type SyncRequest struct {
	SessionID  string                `json:"session_id"`
	Operations []codec.WireOperation `json:"operations"`
	Version    int64                 `json:"version"`
}

// SyncResponse is returned by a successful sync.
type SyncResponse struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// StateResponse is the JSON body of GET /peer/whiteboard/{session_id}.
type StateResponse struct {
	SessionID  string                `json:"session_id"`
	Operations []codec.WireOperation `json:"operations"`
	Version    int64                 `json:"version"`
}

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Status is the advisory sync state shown to the user. It never blocks drawing.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSyncing
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSyncing:
		return "syncing"
	case StatusFailed:
		return "failed"
	}
	return "idle"
}
