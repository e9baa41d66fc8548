package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession inserts a new ingestion session in the pending state.
func (s *Store) CreateSession(ctx context.Context, label string, mode SessionMode, createdBy string) (*Session, error) {
	if mode == "" {
		mode = ModeArchive
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO sessions (id, label, mode, status, created_by, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(label),
		mode,
		SessionPending,
		nullableString(createdBy),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession fetches a session by identifier.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// ResolveSession fetches a session by full identifier or unambiguous prefix.
func (s *Store) ResolveSession(ctx context.Context, ref string) (*Session, error) {
	if ref == "" {
		return nil, nil
	}
	if session, err := s.GetSession(ctx, ref); err != nil || session != nil {
		return session, err
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? ORDER BY created_at DESC LIMIT 2`,
		ref+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	defer rows.Close()

	var matches []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("session reference %q is ambiguous", ref)
	}
}

// ListSessions returns sessions ordered newest first. A non-positive limit
// returns all sessions.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// BeginSessionProcessing claims a session for processing. It returns false
// when the session is missing or another run already holds it.
func (s *Store) BeginSessionProcessing(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET status = ?, started_at = ?, finished_at = NULL, updated_at = ?
         WHERE id = ? AND status != ?`,
		SessionProcessing,
		now,
		now,
		id,
		SessionProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("begin session processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FinishSession records the terminal status of a processing run.
func (s *Store) FinishSession(ctx context.Context, id string, status SessionStatus) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions SET status = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// UpdateSession persists label and status changes to an existing session.
func (s *Store) UpdateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	session.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sessions
         SET label = ?, mode = ?, status = ?, started_at = ?, finished_at = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(session.Label),
		session.Mode,
		session.Status,
		nullableTime(session.StartedAt),
		nullableTime(session.FinishedAt),
		session.UpdatedAt.Format(time.RFC3339Nano),
		session.ID,
	); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
