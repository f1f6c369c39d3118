package relay

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 256

// MemoryHub is an in-process broadcast medium. Every subscriber of a session,
// the publisher included, receives each message.
type MemoryHub struct {
	mu   sync.Mutex
	subs map[string]map[chan Message]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[chan Message]struct{})}
}

// Channel returns a participant's view of sessionID.
func (h *MemoryHub) Channel(sessionID string) *MemoryChannel {
	return &MemoryChannel{hub: h, sessionID: sessionID, done: make(chan struct{})}
}

func (h *MemoryHub) publish(sessionID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- msg:
		default:
			slog.Warn("subscriber full, dropping message", "component", "relay", "session", sessionID)
		}
	}
}

func (h *MemoryHub) add(sessionID string, ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Message]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
}

func (h *MemoryHub) remove(sessionID string, ch chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sessionID][ch]; !ok {
		return
	}
	delete(h.subs[sessionID], ch)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	close(ch)
}

// MemoryChannel implements Channel on a MemoryHub.
type MemoryChannel struct {
	hub       *MemoryHub
	sessionID string
	closeOnce sync.Once
	done      chan struct{}
}

func (c *MemoryChannel) Publish(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.hub.publish(c.sessionID, msg)
	return nil
}

func (c *MemoryChannel) Subscribe(ctx context.Context) (<-chan Message, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	ch := make(chan Message, subscriberBuffer)
	c.hub.add(c.sessionID, ch)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.hub.remove(c.sessionID, ch)
	}()
	return ch, nil
}

func (c *MemoryChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
