package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"StudyBoard/internal/board"
	"StudyBoard/internal/config"
	"StudyBoard/internal/relay"
	"StudyBoard/internal/state"
)

const connectTimeout = 10 * time.Second

// openSession connects to the broadcast socket and loads the whiteboard
// named by arg.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, arg string, onChange func([]state.Operation)) (*board.Session, error) {
	if err := ensureUserID(cfg); err != nil {
		return nil, err
	}
	baseURL, sessionID, err := target(cfg, arg)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(cfg, baseURL)
	if err != nil {
		return nil, err
	}
	socket, err := relay.SocketURL(baseURL, sessionID, cfg.UserID)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	ch := relay.DialWS(socket, header, logger)
	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ch.WaitConnected(waitCtx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("connect to %s: %w", baseURL, err)
	}

	s, err := board.Open(waitCtx, board.Options{
		SessionID: sessionID,
		UserID:    cfg.UserID,
		Backend:   backend,
		Channel:   ch,
		Debounce:  cfg.Debounce(),
		Logger:    logger,
		OnChange:  onChange,
	})
	if err != nil {
		ch.Close()
		return nil, err
	}
	return s, nil
}

// closeSession flushes what is still queued, bounded by connectTimeout.
func closeSession(s *board.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.Close(ctx)
}
