package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StudyBoard/internal/relay"
)

type recordingFanout struct {
	mu   sync.Mutex
	sent []string
}

func (f *recordingFanout) Publish(_ context.Context, sessionID string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sessionID)
	return nil
}

func (f *recordingFanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func hubServer(t *testing.T, hub *Hub) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := strings.TrimPrefix(r.URL.Path, "/")
		hub.ServeSession(w, r, session, r.URL.Query().Get("user_id"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, session, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + session + "?user_id=" + user
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubRelaysToOtherPeersOnly(t *testing.T) {
	hub := NewHub(nil)
	fanout := &recordingFanout{}
	hub.SetFanout(fanout)
	srv := hubServer(t, hub)

	alice := dial(t, srv, "room", "alice")
	bob := dial(t, srv, "room", "bob")
	stranger := dial(t, srv, "elsewhere", "carol")
	require.Eventually(t, func() bool { return hub.Count("room") == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, alice.WriteJSON(relay.Message{
		Type: "clear",
		Data: map[string]string{"type": "clear", "id": "c1"},
	}))

	bob.SetReadDeadline(time.Now().Add(time.Second))
	var got relay.Message
	require.NoError(t, bob.ReadJSON(&got))
	assert.Equal(t, "room", got.SessionID)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, "c1", got.Data["id"])

	alice.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err, "sender must not receive its own message")

	stranger.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = stranger.ReadMessage()
	assert.Error(t, err, "other sessions must not receive the message")

	assert.Eventually(t, func() bool { return fanout.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsMalformedMessages(t *testing.T) {
	hub := NewHub(nil)
	srv := hubServer(t, hub)

	alice := dial(t, srv, "room", "alice")
	bob := dial(t, srv, "room", "bob")
	require.Eventually(t, func() bool { return hub.Count("room") == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, alice.WriteJSON(relay.Message{Type: "clear", UserID: "alice", Data: map[string]string{"id": "c2"}}))

	bob.SetReadDeadline(time.Now().Add(time.Second))
	var got relay.Message
	require.NoError(t, bob.ReadJSON(&got))
	assert.Equal(t, "c2", got.Data["id"])
}

func TestHubCountDropsOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := hubServer(t, hub)

	conn := dial(t, srv, "room", "alice")
	require.Eventually(t, func() bool { return hub.Count("room") == 1 }, time.Second, 5*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count("room") == 0 }, time.Second, 5*time.Millisecond)
}

func TestShareLinkRoundTrip(t *testing.T) {
	link := ShareLink("192.168.1.20", 8080, "physics lab")
	assert.Equal(t, "studyboard://192.168.1.20:8080/physics%20lab", link)

	base, session, err := ParseShareLink(link)
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.20:8080", base)
	assert.Equal(t, "physics lab", session)
}

func TestParseShareLinkRejects(t *testing.T) {
	for _, link := range []string{
		"http://host:8080/room",
		"studyboard:///room",
		"studyboard://host:8080/",
		"::",
	} {
		_, _, err := ParseShareLink(link)
		assert.Error(t, err, link)
	}
}

func TestRoomFromEntry(t *testing.T) {
	room, ok := roomFromEntry(&mdns.ServiceEntry{
		Host:       "laptop.local.",
		AddrV4:     []byte{10, 0, 0, 5},
		Port:       8080,
		InfoFields: []string{"StudyBoard", "session=room-1"},
	})
	require.True(t, ok)
	assert.Equal(t, Room{Host: "laptop.local.", Addr: "10.0.0.5:8080", SessionID: "room-1"}, room)

	_, ok = roomFromEntry(&mdns.ServiceEntry{Port: 8080})
	assert.False(t, ok)
}
