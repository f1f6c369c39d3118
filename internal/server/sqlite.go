package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"StudyBoard/internal/codec"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS whiteboard_state (
	session_id TEXT PRIMARY KEY,
	operations TEXT NOT NULL DEFAULT '[]',
	version    INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	updated_by TEXT NOT NULL DEFAULT ''
)`

// SQLiteStore keeps each whiteboard as one JSON row.
type SQLiteStore struct {
	conn   *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; also keeps an in-memory database on one connection.
	conn.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{conn: conn, logger: logger.With("component", "store", "driver", "sqlite")}, nil
}

func (s *SQLiteStore) Sync(ctx context.Context, sessionID, userID string, ops []codec.WireOperation, clientVersion int64) (int64, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	var (
		raw     string
		version int64
		current []codec.WireOperation
	)
	err = tx.QueryRowContext(ctx,
		`SELECT operations, version FROM whiteboard_state WHERE session_id = ?`, sessionID,
	).Scan(&raw, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Info("creating whiteboard", "session", sessionID, "by", userID)
	case err != nil:
		return 0, fmt.Errorf("load whiteboard: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return 0, fmt.Errorf("decode stored operations: %w", err)
		}
	}
	if clientVersion != version {
		s.logger.Debug("client version differs", "session", sessionID, "client", clientVersion, "stored", version)
	}

	merged, err := json.Marshal(merge(current, ops))
	if err != nil {
		return 0, fmt.Errorf("encode operations: %w", err)
	}
	version++
	_, err = tx.ExecContext(ctx, `
		INSERT INTO whiteboard_state (session_id, operations, version, updated_at, updated_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			operations = excluded.operations,
			version = excluded.version,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		sessionID, string(merged), version, time.Now().UTC().Format(time.RFC3339Nano), userID)
	if err != nil {
		return 0, fmt.Errorf("store whiteboard: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sync: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) State(ctx context.Context, sessionID string) (State, error) {
	var (
		raw, updatedAt string
		st             = State{SessionID: sessionID}
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT operations, version, updated_at, updated_by FROM whiteboard_state WHERE session_id = ?`, sessionID,
	).Scan(&raw, &st.Version, &updatedAt, &st.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("load whiteboard: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &st.Operations); err != nil {
		return State{}, fmt.Errorf("decode stored operations: %w", err)
	}
	if st.Operations == nil {
		st.Operations = []codec.WireOperation{}
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
