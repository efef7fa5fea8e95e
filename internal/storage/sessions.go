package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nhartono/daftar/internal/session"
)

// SessionStore adapts the database to the session.Store interface. Each
// session row carries the full serialized state, so a read reconstructs the
// conversation exactly as the last commit left it.
type SessionStore struct {
	db *sql.DB
}

// SessionStore returns a session.Store view over this database.
func (s *Store) SessionStore() *SessionStore {
	return &SessionStore{db: s.db}
}

func (s *SessionStore) Create(ctx context.Context, st *session.State) error {
	raw, err := session.MarshalState(st)
	if err != nil {
		return fmt.Errorf("serializing session %s: %w", st.SessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state_json, current_section, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		st.SessionID, string(raw), st.CurrentSection,
		st.CreatedAt.UTC().Format(time.RFC3339Nano),
		st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && isUniqueViolation(err) {
		return session.ErrExists
	}
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state_json FROM sessions WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st, err := session.UnmarshalState([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("deserializing session %s: %w", id, err)
	}
	return st, nil
}

func (s *SessionStore) Update(ctx context.Context, st *session.State) error {
	raw, err := session.MarshalState(st)
	if err != nil {
		return fmt.Errorf("serializing session %s: %w", st.SessionID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state_json = ?, current_section = ?, updated_at = ? WHERE id = ?`,
		string(raw), st.CurrentSection,
		st.UpdatedAt.UTC().Format(time.RFC3339Nano), st.SessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ListIDs returns all session ids, newest first. Used by the CLI.
func (s *SessionStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text;
	// there is no exported error type to match against.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
