package net

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"StudyBoard/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Peer is one websocket participant of a session.
type Peer struct {
	conn      *websocket.Conn
	sessionID string
	userID    string
	send      chan []byte
}

// Fanout forwards a session message to other hub replicas.
type Fanout interface {
	Publish(ctx context.Context, sessionID string, data []byte) error
}

// Hub is the server side of the broadcast channel: every message a peer
// sends is relayed to the other peers of the same session.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[*Peer]struct{}
	fanout   Fanout
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:   logger.With("component", "hub"),
		sessions: make(map[string]map[*Peer]struct{}),
	}
}

// SetFanout makes the hub forward every accepted message to f as well.
func (h *Hub) SetFanout(f Fanout) {
	h.mu.Lock()
	h.fanout = f
	h.mu.Unlock()
}

// ServeSession upgrades the request and runs the peer until it disconnects.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}
	p := &Peer{conn: conn, sessionID: sessionID, userID: userID, send: make(chan []byte, sendBuffer)}
	h.add(p)
	go h.writePump(p)
	h.readPump(p)
}

func (h *Hub) add(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[p.sessionID] == nil {
		h.sessions[p.sessionID] = make(map[*Peer]struct{})
	}
	h.sessions[p.sessionID][p] = struct{}{}
	h.logger.Info("peer joined", "session", p.sessionID, "user", p.userID,
		"addr", p.conn.RemoteAddr().String(), "peers", len(h.sessions[p.sessionID]))
}

func (h *Hub) remove(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.sessions[p.sessionID]
	if _, ok := peers[p]; !ok {
		return
	}
	delete(peers, p)
	close(p.send)
	if len(peers) == 0 {
		delete(h.sessions, p.sessionID)
	}
	h.logger.Info("peer left", "session", p.sessionID, "user", p.userID, "peers", len(peers))
}

// Broadcast queues data for every peer of sessionID except exclude.
// A peer whose queue is full is disconnected.
func (h *Hub) Broadcast(sessionID string, data []byte, exclude *Peer) {
	h.mu.RLock()
	var slow []*Peer
	for p := range h.sessions[sessionID] {
		if p == exclude {
			continue
		}
		select {
		case p.send <- data:
		default:
			slow = append(slow, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range slow {
		h.logger.Warn("dropping slow peer", "session", sessionID, "user", p.userID)
		h.remove(p)
	}
}

// Deliver hands a message relayed by another replica to every local peer.
func (h *Hub) Deliver(sessionID string, data []byte) {
	h.Broadcast(sessionID, data, nil)
}

// Count returns the number of connected peers in sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Peer
	for _, peers := range h.sessions {
		for p := range peers {
			all = append(all, p)
		}
	}
	h.mu.Unlock()
	for _, p := range all {
		p.conn.Close()
	}
}

func (h *Hub) readPump(p *Peer) {
	defer func() {
		h.remove(p)
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("peer read failed", "session", p.sessionID, "err", err)
			}
			return
		}

		var msg relay.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Warn("dropping malformed message", "session", p.sessionID, "user", p.userID, "err", err)
			continue
		}
		msg.SessionID = p.sessionID
		if msg.UserID == "" {
			msg.UserID = p.userID
		}
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		h.logger.Debug("relaying", "session", p.sessionID, "type", msg.Type, "from", msg.UserID)
		h.Broadcast(p.sessionID, data, p)

		h.mu.RLock()
		f := h.fanout
		h.mu.RUnlock()
		if f != nil {
			if err := f.Publish(context.Background(), p.sessionID, data); err != nil {
				h.logger.Warn("fanout publish failed", "session", p.sessionID, "err", err)
			}
		}
	}
}

func (h *Hub) writePump(p *Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
