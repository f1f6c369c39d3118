package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"StudyBoard/internal/state"
)

const (
	DefaultDebounce = time.Second
	flushTimeout    = 30 * time.Second
)

// Coordinator queues locally created operations and submits them to the
// backend in debounced batches. A failed batch stays queued and is retried on
// the next trigger; nothing is removed until the backend acknowledges it.
type Coordinator struct {
	backend   Backend
	sessionID string
	debounce  time.Duration
	logger    *slog.Logger

	flushMu sync.Mutex // serializes requests

	mu      sync.Mutex
	pending []state.Operation
	version int64
	timer   *time.Timer
	timerID uint64 // bumped whenever timer is replaced or cancelled
	status  Status
	stopped bool
}

type Option func(*Coordinator)

// WithDebounce sets the quiet period before a queued batch is sent.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a coordinator for one session.
func NewCoordinator(backend Backend, sessionID string, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:   backend,
		sessionID: sessionID,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "syncer", "session", sessionID)
	return c
}

// Load fetches the stored whiteboard and adopts its version. Callers seed
// their local log with the returned operations before applying anything else.
// A whiteboard the backend has never seen loads as empty at version 0.
func (c *Coordinator) Load(ctx context.Context) ([]state.Operation, error) {
	st, err := c.backend.FetchState(ctx, c.sessionID)
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		c.logger.Info("whiteboard not created yet, starting empty")
		st = State{}
	case err != nil:
		return nil, fmt.Errorf("fetch whiteboard state: %w", err)
	}
	c.mu.Lock()
	c.version = st.Version
	c.mu.Unlock()
	c.logger.Info("loaded whiteboard", "operations", len(st.Operations), "version", st.Version)
	return st.Operations, nil
}

// Enqueue queues op and arms the debounce timer unless one is already armed.
func (c *Coordinator) Enqueue(op state.Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, op)
	if c.status != StatusSyncing {
		c.status = StatusPending
	}
	c.armLocked()
}

func (c *Coordinator) armLocked() {
	if c.timer != nil || c.stopped {
		return
	}
	c.timerID++
	id := c.timerID
	c.timer = time.AfterFunc(c.debounce, func() { c.onTimer(id) })
}

func (c *Coordinator) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerID++
}

// onTimer runs the debounced flush for timer id. A timer that was cancelled
// or replaced after it fired does nothing.
func (c *Coordinator) onTimer(id uint64) {
	c.mu.Lock()
	if id != c.timerID || c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		c.logger.Warn("debounced flush failed", "err", err)
	}
}

// Flush sends every queued operation. On success exactly the sent operations
// leave the queue; anything enqueued while the request was in flight stays.
// On failure the queue is untouched and a retry is armed.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	n := len(c.pending)
	if n == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := make([]state.Operation, n)
	copy(batch, c.pending)
	env := Envelope{SessionID: c.sessionID, Operations: batch, Version: c.version}
	c.status = StatusSyncing
	c.mu.Unlock()

	version, err := c.backend.Sync(ctx, env)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = StatusFailed
		c.armLocked()
		return fmt.Errorf("sync %d operations: %w", n, err)
	}

	// Only Flush removes from the head and flushes are serialized, so the
	// first n entries are still the batch we sent.
	c.pending = append([]state.Operation(nil), c.pending[n:]...)
	if version < c.version {
		c.logger.Warn("backend version went backwards", "have", c.version, "got", version)
	}
	c.version = version
	if len(c.pending) > 0 {
		c.status = StatusPending
	} else {
		c.status = StatusIdle
	}
	c.logger.Debug("flushed", "operations", n, "version", version, "remaining", len(c.pending))
	return nil
}

// ForceFlush cancels the debounce timer and flushes immediately.
func (c *Coordinator) ForceFlush(ctx context.Context) error {
	c.mu.Lock()
	c.disarmLocked()
	c.mu.Unlock()
	return c.Flush(ctx)
}

// Stop cancels pending timers and prevents new ones. Queued operations are
// kept so a final ForceFlush can still send them.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.disarmLocked()
}

// Version is the last version acknowledged by the backend.
func (c *Coordinator) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Pending returns a copy of the unacknowledged queue.
func (c *Coordinator) Pending() []state.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]state.Operation, len(c.pending))
	copy(out, c.pending)
	return out
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
