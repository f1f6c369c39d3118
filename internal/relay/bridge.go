package relay

import (
	"context"
	"log/slog"

	"StudyBoard/internal/state"
)

// Bridge fans local operations out on a session channel and turns messages
// from other participants back into operations.
type Bridge struct {
	channel   Channel
	sessionID string
	userID    string
	logger    *slog.Logger
}

func NewBridge(channel Channel, sessionID, userID string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		channel:   channel,
		sessionID: sessionID,
		userID:    userID,
		logger:    logger.With("component", "bridge", "session", sessionID),
	}
}

// Publish broadcasts op. Broadcast is best effort: failures are logged and
// swallowed since the backend sync path is the durable fallback.
func (b *Bridge) Publish(ctx context.Context, op state.Operation) {
	msg := NewMessage(b.sessionID, op)
	if err := b.channel.Publish(ctx, msg); err != nil {
		b.logger.Warn("broadcast failed", "op", state.MetaOf(op).ID, "err", err)
	}
}

// Run forwards decoded operations from in to out until in closes or ctx
// ends. Messages authored by this user and undecodable messages are dropped.
func (b *Bridge) Run(ctx context.Context, in <-chan Message, out chan<- state.Operation) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			op, keep := b.accept(msg)
			if !keep {
				continue
			}
			select {
			case out <- op:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bridge) accept(msg Message) (state.Operation, bool) {
	if msg.SessionID != "" && msg.SessionID != b.sessionID {
		b.logger.Debug("message for another session", "got", msg.SessionID)
		return nil, false
	}
	if msg.Sender() == b.userID {
		return nil, false
	}
	op, ok := msg.Operation()
	if !ok {
		b.logger.Warn("skipping unknown operation", "type", msg.Type, "from", msg.Sender())
		return nil, false
	}
	return op, true
}
