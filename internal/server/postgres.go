package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"StudyBoard/internal/codec"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS whiteboard_state (
	session_id TEXT PRIMARY KEY,
	operations JSONB NOT NULL DEFAULT '[]'::jsonb,
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_by TEXT NOT NULL DEFAULT ''
)`

// PostgresStore keeps whiteboards in a shared database so several server
// replicas can serve the same sessions.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to databaseURL and creates the table if needed.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "store", "driver", "postgres")}, nil
}

func (s *PostgresStore) Sync(ctx context.Context, sessionID, userID string, ops []codec.WireOperation, clientVersion int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure the row exists so FOR UPDATE has something to lock.
	if _, err := tx.Exec(ctx,
		`INSERT INTO whiteboard_state (session_id, updated_by) VALUES ($1, $2) ON CONFLICT (session_id) DO NOTHING`,
		sessionID, userID); err != nil {
		return 0, fmt.Errorf("create whiteboard: %w", err)
	}

	var (
		current []codec.WireOperation
		version int64
	)
	if err := tx.QueryRow(ctx,
		`SELECT operations, version FROM whiteboard_state WHERE session_id = $1 FOR UPDATE`, sessionID,
	).Scan(&current, &version); err != nil {
		return 0, fmt.Errorf("load whiteboard: %w", err)
	}
	if clientVersion != version {
		s.logger.Debug("client version differs", "session", sessionID, "client", clientVersion, "stored", version)
	}

	version++
	if _, err := tx.Exec(ctx,
		`UPDATE whiteboard_state SET operations = $2, version = $3, updated_at = now(), updated_by = $4 WHERE session_id = $1`,
		sessionID, merge(current, ops), version, userID); err != nil {
		return 0, fmt.Errorf("store whiteboard: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit sync: %w", err)
	}
	return version, nil
}

func (s *PostgresStore) State(ctx context.Context, sessionID string) (State, error) {
	st := State{SessionID: sessionID}
	err := s.pool.QueryRow(ctx,
		`SELECT operations, version, updated_at, updated_by FROM whiteboard_state WHERE session_id = $1`, sessionID,
	).Scan(&st.Operations, &st.Version, &st.UpdatedAt, &st.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load whiteboard: %w", err)
	}
	if st.Operations == nil {
		st.Operations = []codec.WireOperation{}
	}
	return st, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
