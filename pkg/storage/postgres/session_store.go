package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solbridge/pkg/session"
)

// SessionStore implements session.Store using PostgreSQL. The full session
// is kept as JSONB; queryable fields are mirrored into columns.
type SessionStore struct {
	pool *Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Compile-time interface check.
var _ session.Store = (*SessionStore)(nil)

// Create inserts a new session. An existing id is a version conflict.
func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	query := `
		INSERT INTO execution_sessions (
			session_id, source_address, solana_address, provider, route_id,
			status, current_step, data, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.pool.Exec(ctx, query,
		sess.ID,
		sess.SourceAddress,
		sess.SolanaAddress,
		sess.Provider,
		sess.RouteID,
		string(sess.Status),
		sess.CurrentStep,
		data,
		sess.Version,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return session.ErrVersionConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by id. Returns session.ErrNotFound if missing.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `SELECT data, version FROM execution_sessions WHERE session_id = $1`

	var (
		data    []byte
		version int64
	)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&data, &version); err != nil {
		if isNotFoundError(err) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	sess.Version = version
	return &sess, nil
}

// Update stores sess if the stored version still equals expectedVersion.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session, expectedVersion int64) error {
	next := sess.Clone()
	next.Version = expectedVersion + 1

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	query := `
		UPDATE execution_sessions
		SET status = $2, current_step = $3, data = $4, version = version + 1, updated_at = $5
		WHERE session_id = $1 AND version = $6
	`

	tag, err := s.pool.Exec(ctx, query,
		sess.ID,
		string(sess.Status),
		sess.CurrentStep,
		data,
		sess.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM execution_sessions WHERE session_id = $1)`, sess.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return session.ErrNotFound
		}
		return session.ErrVersionConflict
	}

	sess.Version = next.Version
	return nil
}
