// Package relay carries whiteboard operations between session participants
// over a best-effort broadcast channel.
package relay

import (
	"context"
	"errors"

	"StudyBoard/internal/codec"
	"StudyBoard/internal/state"
)

// Message is one broadcast on a session channel. Data holds the flat
// string encoding produced by codec.EncodeBroadcast.
type Message struct {
	SessionID string            `json:"sessionId"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data"`
	Timestamp int64             `json:"timestamp"`
	UserID    string            `json:"userId"`
}

// Channel is a publish/subscribe primitive scoped to one session.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe returns messages published by other participants. The
	// channel is closed when ctx ends or the Channel is closed.
	Subscribe(ctx context.Context) (<-chan Message, error)
	Close() error
}

var ErrClosed = errors.New("relay: channel closed")

// NewMessage wraps op for broadcast on sessionID.
func NewMessage(sessionID string, op state.Operation) Message {
	m := state.MetaOf(op)
	return Message{
		SessionID: sessionID,
		Type:      string(op.Kind()),
		Data:      codec.EncodeBroadcast(op),
		Timestamp: m.Timestamp,
		UserID:    m.UserID,
	}
}

// Sender returns the author of msg, falling back to the payload's user_id.
func (m Message) Sender() string {
	if m.UserID != "" {
		return m.UserID
	}
	return m.Data["user_id"]
}

// Operation decodes the payload. The envelope type wins over a missing
// payload type.
func (m Message) Operation() (state.Operation, bool) {
	data := m.Data
	if data["type"] == "" && m.Type != "" {
		data = make(map[string]string, len(m.Data)+1)
		for k, v := range m.Data {
			data[k] = v
		}
		data["type"] = m.Type
	}
	op, ok := codec.DecodeBroadcast(data, m.Timestamp)
	if !ok {
		return nil, false
	}
	if state.MetaOf(op).UserID == "" && m.UserID != "" {
		op = state.Stamp(op, fixedStamp{ts: m.Timestamp}, m.UserID)
	}
	return op, true
}

// fixedStamp re-stamps a decoded op without changing its id or timestamp.
type fixedStamp struct{ ts int64 }

func (f fixedStamp) NowMillis() int64 { return f.ts }
func (fixedStamp) NewID() string      { return "" }
