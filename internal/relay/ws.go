package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var errNotConnected = errors.New("relay: not connected")

// WSChannel is a Channel backed by the study-room server's session socket.
// It dials in the background and redials with exponential backoff whenever
// the connection drops. Messages published while disconnected are lost;
// the backend sync path covers them.
type WSChannel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[chan Message]struct{}
	closed bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ready  chan struct{} // closed after the first successful dial
	once   sync.Once
}

// SocketURL builds the session socket address from the backend base URL.
func SocketURL(baseURL, sessionID, userID string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("relay url %q: unsupported scheme", baseURL)
	}
	u = u.JoinPath("peer", "whiteboard", sessionID, "ws")
	q := u.Query()
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialWS starts maintaining a connection to socketURL.
func DialWS(socketURL string, header http.Header, logger *slog.Logger) *WSChannel {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSChannel{
		url:    socketURL,
		header: header,
		dialer: websocket.DefaultDialer,
		logger: logger.With("component", "relay"),
		subs:   make(map[chan Message]struct{}),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go c.run()
	return c
}

// WaitConnected blocks until the first connection is up or ctx ends.
func (c *WSChannel) WaitConnected(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSChannel) run() {
	defer close(c.done)
	defer c.closeSubs()

	for c.ctx.Err() == nil {
		conn, err := c.dial()
		if err != nil {
			return
		}
		c.setConn(conn)
		c.once.Do(func() { close(c.ready) })
		c.logger.Info("relay connected", "url", c.url)

		err = c.readLoop(conn)
		c.setConn(nil)
		conn.Close()
		if c.ctx.Err() == nil {
			c.logger.Warn("relay connection lost", "err", err)
		}
	}
}

func (c *WSChannel) dial() (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0 // until closed

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		cn, _, err := c.dialer.DialContext(c.ctx, c.url, c.header)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}, backoff.WithContext(b, c.ctx), func(err error, wait time.Duration) {
		c.logger.Debug("relay dial failed", "err", err, "retry_in", wait)
	})
	if err != nil {
		return nil, err
	}
	if c.ctx.Err() != nil {
		conn.Close()
		return nil, c.ctx.Err()
	}
	return conn, nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn) error {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.mu.Lock()
		for ch := range c.subs {
			select {
			case ch <- msg:
			default:
				c.logger.Warn("subscriber full, dropping message", "type", msg.Type)
			}
		}
		c.mu.Unlock()
	}
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WSChannel) Publish(ctx context.Context, msg Message) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

func (c *WSChannel) Subscribe(ctx context.Context) (<-chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	ch := make(chan Message, subscriberBuffer)
	c.subs[ch] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (c *WSChannel) closeSubs() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}

// Close stops redialing and drops the connection.
func (c *WSChannel) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	<-c.done
	return nil
}
