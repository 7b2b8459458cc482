// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/llm"
)

const (
	sessionTable = "tom_sessions"
	turnTable    = "tom_turns"
)

// SQLiteStore persists sessions in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates a SQLite-backed session store and ensures schema.
// A zero ttl means sessions never expire.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureSessionSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func ensureSessionSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			last_triage TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		);`, sessionTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at);`, sessionTable, sessionTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT NOT NULL DEFAULT '',
			invocation_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);`, turnTable),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_session_seq ON %s(session_id, seq);`, turnTable, turnTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) expiryUnix(from time.Time) int64 {
	if s.ttl == 0 {
		return 0
	}
	return from.Add(s.ttl).Unix()
}

// ensure creates-or-refreshes the session row, replacing it if expired.
// Returns the live row's creation time.
func (s *SQLiteStore) ensure(ctx context.Context, tx *sql.Tx, sessionID string) (time.Time, error) {
	now := s.now()

	var createdAt, expiresAt int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT created_at, expires_at FROM %s WHERE id = ?", sessionTable),
		sessionID,
	).Scan(&createdAt, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		// New session.
	case err != nil:
		return time.Time{}, err
	default:
		if expiresAt == 0 || expiresAt > now.Unix() {
			return time.Unix(createdAt, 0), nil
		}
		// Expired: discard the old history and start over with the same id.
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", turnTable), sessionID); err != nil {
			return time.Time{}, err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE id = ?", sessionTable), sessionID); err != nil {
			return time.Time{}, err
		}
	}

	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, last_triage, created_at, expires_at) VALUES (?, '[]', ?, ?)", sessionTable),
		sessionID, now.Unix(), s.expiryUnix(now))
	if err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// Get returns the session, creating it if absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to open transaction", err)
	}
	defer tx.Rollback()

	createdAt, err := s.ensure(ctx, tx, sessionID)
	if err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to load session", err)
	}

	var lastTriageJSON string
	var expiresAt int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT last_triage, expires_at FROM %s WHERE id = ?", sessionTable),
		sessionID,
	).Scan(&lastTriageJSON, &expiresAt); err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to load session row", err)
	}

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT id, role, content, tool_calls, invocation_id, created_at FROM %s WHERE session_id = ? ORDER BY seq", turnTable),
		sessionID)
	if err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to load turns", err)
	}
	defer rows.Close()

	sess := &Session{
		ID:        sessionID,
		CreatedAt: createdAt,
	}
	if expiresAt > 0 {
		sess.ExpiresAt = time.Unix(expiresAt, 0)
	}
	if err := json.Unmarshal([]byte(lastTriageJSON), &sess.LastTriage); err != nil {
		sess.LastTriage = nil
	}

	for rows.Next() {
		var turn Turn
		var toolCallsJSON string
		var created int64
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &toolCallsJSON, &turn.InvocationID, &created); err != nil {
			return nil, errors.New(errors.CodeSessionError, "failed to scan turn", err)
		}
		if toolCallsJSON != "" {
			var calls []llm.ToolCall
			if err := json.Unmarshal([]byte(toolCallsJSON), &calls); err == nil {
				turn.ToolCalls = calls
			}
		}
		turn.CreatedAt = time.Unix(created, 0)
		sess.Turns = append(sess.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to iterate turns", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.New(errors.CodeSessionError, "failed to commit", err)
	}
	return sess, nil
}

// Append adds turns to the session history and refreshes its expiry.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeSessionError, "failed to open transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.ensure(ctx, tx, sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to ensure session", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) FROM %s WHERE session_id = ?", turnTable),
		sessionID,
	).Scan(&seq); err != nil {
		return errors.New(errors.CodeSessionError, "failed to read sequence", err)
	}

	now := s.now()
	for _, turn := range turns {
		seq++
		if turn.ID == "" {
			turn.ID = uuid.New().String()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = now
		}
		toolCallsJSON := ""
		if len(turn.ToolCalls) > 0 {
			raw, err := json.Marshal(turn.ToolCalls)
			if err != nil {
				return errors.New(errors.CodeSessionError, "failed to encode tool calls", err)
			}
			toolCallsJSON = string(raw)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, session_id, seq, role, content, tool_calls, invocation_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", turnTable),
			turn.ID, sessionID, seq, string(turn.Role), turn.Content, toolCallsJSON, turn.InvocationID, turn.CreatedAt.Unix()); err != nil {
			return errors.New(errors.CodeSessionError, "failed to insert turn", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET expires_at = ? WHERE id = ?", sessionTable),
		s.expiryUnix(now), sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to refresh expiry", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeSessionError, "failed to commit", err)
	}
	return nil
}

// SetLastTriage records the module names last selected for the session.
func (s *SQLiteStore) SetLastTriage(ctx context.Context, sessionID string, modules []string) error {
	raw, err := json.Marshal(modules)
	if err != nil {
		return errors.New(errors.CodeSessionError, "failed to encode triage result", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeSessionError, "failed to open transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.ensure(ctx, tx, sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to ensure session", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_triage = ? WHERE id = ?", sessionTable),
		string(raw), sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to store triage result", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeSessionError, "failed to commit", err)
	}
	return nil
}

// Reset clears history but preserves identity and the expiry clock.
func (s *SQLiteStore) Reset(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeSessionError, "failed to open transaction", err)
	}
	defer tx.Rollback()

	if _, err := s.ensure(ctx, tx, sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to ensure session", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", turnTable), sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to clear turns", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_triage = '[]' WHERE id = ?", sessionTable), sessionID); err != nil {
		return errors.New(errors.CodeSessionError, "failed to clear triage result", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeSessionError, "failed to commit", err)
	}
	return nil
}

// Sweep evicts sessions past their expiry.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	now := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.New(errors.CodeSessionError, "failed to open transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (
			SELECT id FROM %s WHERE expires_at > 0 AND expires_at <= ?
		)`, turnTable, sessionTable), now); err != nil {
		return 0, errors.New(errors.CodeSessionError, "failed to sweep turns", err)
	}

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE expires_at > 0 AND expires_at <= ?", sessionTable), now)
	if err != nil {
		return 0, errors.New(errors.CodeSessionError, "failed to sweep sessions", err)
	}
	evicted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, errors.New(errors.CodeSessionError, "failed to commit", err)
	}
	return int(evicted), nil
}

var _ Store = (*SQLiteStore)(nil)
