// Package board joins one participant to a shared whiteboard session: the
// local log answers reads, the coordinator persists, the relay broadcasts.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"StudyBoard/internal/relay"
	"StudyBoard/internal/state"
	"StudyBoard/internal/syncer"
)

var ErrClosed = errors.New("board: session closed")

// Options configures Open. Backend, Channel, SessionID and UserID are required.
type Options struct {
	SessionID string
	UserID    string
	Backend   syncer.Backend
	Channel   relay.Channel
	Clock     state.Clock
	Debounce  time.Duration
	Logger    *slog.Logger
	// OnChange is called with the new visible set after every change, from
	// the goroutine that caused it.
	OnChange func(visible []state.Operation)
}

// Session is one participant's view of a whiteboard.
type Session struct {
	id       string
	userID   string
	clock    state.Clock
	log      *state.Log
	coord    *syncer.Coordinator
	bridge   *relay.Bridge
	channel  relay.Channel
	onChange func([]state.Operation)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex // held for reading while a submit is in progress
	closed bool
}

// Open loads the stored whiteboard and starts receiving broadcasts. A failed
// load is returned and nothing is left running; callers may retry.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.SessionID == "" || opts.UserID == "" {
		return nil, errors.New("board: session id and user id are required")
	}
	if opts.Backend == nil || opts.Channel == nil {
		return nil, errors.New("board: backend and channel are required")
	}
	if opts.Clock == nil {
		opts.Clock = state.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:       opts.SessionID,
		userID:   opts.UserID,
		clock:    opts.Clock,
		log:      state.NewLog(),
		channel:  opts.Channel,
		onChange: opts.OnChange,
		logger:   opts.Logger.With("component", "board", "session", opts.SessionID, "user", opts.UserID),
		done:     make(chan struct{}),
	}
	s.coord = syncer.NewCoordinator(opts.Backend, opts.SessionID,
		syncer.WithDebounce(opts.Debounce), syncer.WithLogger(opts.Logger))
	s.bridge = relay.NewBridge(opts.Channel, opts.SessionID, opts.UserID, opts.Logger)

	// Subscribe before loading so nothing broadcast in between is missed;
	// anything already in the loaded state is deduplicated by id.
	runCtx, cancel := context.WithCancel(context.Background())
	in, err := opts.Channel.Subscribe(runCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to session: %w", err)
	}
	initial, err := s.coord.Load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	s.log.Reset(initial)
	s.cancel = cancel

	inbound := make(chan state.Operation, 64)
	go s.bridge.Run(runCtx, in, inbound)
	go s.loop(runCtx, inbound)

	s.logger.Info("session opened", "operations", s.log.Len(), "version", s.coord.Version())
	s.changed()
	return s, nil
}

func (s *Session) loop(ctx context.Context, inbound <-chan state.Operation) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-inbound:
			if s.log.Apply(op) {
				s.logger.Debug("applied remote operation", "op", state.MetaOf(op).ID, "type", op.Kind())
				s.changed()
			}
		}
	}
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange(s.log.Visible())
	}
}

// Submit applies a locally created op, queues it for the backend and
// broadcasts it. Resubmitting an id that is already in the log does nothing.
// An op accepted before Close is always part of the final flush.
func (s *Session) Submit(ctx context.Context, op state.Operation) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	if !s.log.Apply(op) {
		s.mu.RUnlock()
		return nil
	}
	s.coord.Enqueue(op)
	s.bridge.Publish(ctx, op)
	s.mu.RUnlock()

	s.changed()
	return nil
}

func (s *Session) submitStamped(ctx context.Context, op state.Operation) (state.Operation, error) {
	op = state.Stamp(op, s.clock, s.userID)
	if err := s.Submit(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Draw submits a stroke through points.
func (s *Session) Draw(ctx context.Context, points []state.Point, color state.Color, width float32) (*state.Draw, error) {
	op, err := s.submitStamped(ctx, &state.Draw{Points: points, Color: color, StrokeWidth: width})
	if err != nil {
		return nil, err
	}
	return op.(*state.Draw), nil
}

// Text submits a text label anchored at pos.
func (s *Session) Text(ctx context.Context, text string, pos state.Point, fontSize float32, color state.Color) (*state.Text, error) {
	op, err := s.submitStamped(ctx, &state.Text{Text: text, Position: pos, FontSize: fontSize, Color: color})
	if err != nil {
		return nil, err
	}
	return op.(*state.Text), nil
}

// Erase submits an erase of the given operation ids.
func (s *Session) Erase(ctx context.Context, ids ...string) (*state.Erase, error) {
	op, err := s.submitStamped(ctx, &state.Erase{TargetIDs: ids})
	if err != nil {
		return nil, err
	}
	return op.(*state.Erase), nil
}

func (s *Session) Clear(ctx context.Context) (*state.Clear, error) {
	op, err := s.submitStamped(ctx, &state.Clear{})
	if err != nil {
		return nil, err
	}
	return op.(*state.Clear), nil
}

// Visible returns the operations currently on the canvas.
func (s *Session) Visible() []state.Operation { return s.log.Visible() }

// Operations returns the full local log, markers included.
func (s *Session) Operations() []state.Operation { return s.log.Operations() }

func (s *Session) SyncStatus() syncer.Status { return s.coord.Status() }

func (s *Session) Version() int64 { return s.coord.Version() }

// Pending is the number of operations not yet acknowledged by the backend.
func (s *Session) Pending() int { return len(s.coord.Pending()) }

// Flush sends queued operations now instead of waiting for the debounce.
func (s *Session) Flush(ctx context.Context) error { return s.coord.ForceFlush(ctx) }

// Close stops receiving, sends whatever is still queued and releases the
// channel. The flush error, if any, is returned; the session is closed either way.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.coord.Stop()
	flushErr := s.coord.ForceFlush(ctx)
	if err := s.channel.Close(); err != nil {
		s.logger.Warn("closing channel", "err", err)
	}
	if flushErr != nil {
		return fmt.Errorf("final flush: %w", flushErr)
	}
	s.logger.Info("session closed", "version", s.coord.Version())
	return nil
}
