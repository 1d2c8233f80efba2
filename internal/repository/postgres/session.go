package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/auric/api/internal/domain"
	apperrors "github.com/auric/api/pkg/errors"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, token_hash, session_version, user_agent, ip_address, created_at, last_used_at, expires_at, revoked_at, revoke_reason`

// Create inserts a new session into the database.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO user_sessions (id, user_id, token_hash, session_version, user_agent, ip_address, created_at, last_used_at, expires_at, revoked_at, revoke_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.TokenHash,
		s.SessionVersion,
		s.UserAgent,
		s.IPAddress,
		s.CreatedAt,
		s.LastUsedAt,
		s.ExpiresAt,
		s.RevokedAt,
		s.RevokeReason,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its identifier.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE id = $1`

	var s domain.Session
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.SessionVersion,
		&s.UserAgent,
		&s.IPAddress,
		&s.CreatedAt,
		&s.LastUsedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&s.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &s, nil
}

// ListByUser returns the user's sessions, newest first. Unless includeRevoked
// is set, revoked and expired sessions are filtered out.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, includeRevoked bool, now time.Time) ([]domain.Session, error) {
	if includeRevoked {
		query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE user_id = $1 ORDER BY created_at DESC`
		return r.listSessions(ctx, query, userID)
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`
	return r.listSessions(ctx, query, userID, now)
}

// ListActiveByUser returns the user's unrevoked, unexpired sessions, newest
// first, up to limit.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND token_hash IS NOT NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3`
	return r.listSessions(ctx, query, userID, now, limit)
}

// ListActiveCandidates returns the most recently used unrevoked, unexpired
// sessions across all users, up to limit. Ordering by last_used_at keeps
// long-lived sessions that refresh often inside the scan window; rotation
// bumps the timestamp.
func (r *SessionRepository) ListActiveCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE revoked_at IS NULL AND token_hash IS NOT NULL AND expires_at > $1
		ORDER BY last_used_at DESC
		LIMIT $2`
	return r.listSessions(ctx, query, now, limit)
}

// Rotate replaces the session's token hash and extends its expiry while
// archiving the previous hash to the revoked tokens table, atomically.
func (r *SessionRepository) Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt, lastUsedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx, `
		UPDATE user_sessions
		SET token_hash = $1, expires_at = $2, last_used_at = $3
		WHERE id = $4 AND revoked_at IS NULL
		RETURNING user_id`,
		newHash, expiresAt, lastUsedAt, sessionID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("rotate session token: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO revoked_refresh_tokens (id, session_id, user_id, token_hash, revoked_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), sessionID, userID, oldHash, lastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("archive rotated token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Revoke marks the session revoked with the given reason, clears its token
// hash, and bumps its session version. Revoking an already-revoked session is
// a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, reason string, now time.Time) error {
	query := `
		UPDATE user_sessions
		SET revoked_at = $1, revoke_reason = $2, token_hash = NULL, session_version = session_version + 1
		WHERE id = $3 AND revoked_at IS NULL`

	_, err := r.db.Exec(ctx, query, now, reason, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// RevokeOwned revokes the session only if it belongs to the user. Returns
// false when no matching active row exists.
func (r *SessionRepository) RevokeOwned(ctx context.Context, sessionID, userID, reason string, now time.Time) (bool, error) {
	query := `
		UPDATE user_sessions
		SET revoked_at = $1, revoke_reason = $2, token_hash = NULL, session_version = session_version + 1
		WHERE id = $3 AND user_id = $4 AND revoked_at IS NULL`

	ct, err := r.db.Exec(ctx, query, now, reason, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("revoke owned session: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RevokeAllForUser revokes every active session for the user except keepID.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, keepID, reason string, now time.Time) (int64, error) {
	query := `
		UPDATE user_sessions
		SET revoked_at = $1, revoke_reason = $2, token_hash = NULL, session_version = session_version + 1
		WHERE user_id = $3 AND revoked_at IS NULL AND id <> $4`

	ct, err := r.db.Exec(ctx, query, now, reason, userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for user: %w", err)
	}

	return ct.RowsAffected(), nil
}

// PruneExpired deletes sessions that expired before the cutoff.
func (r *SessionRepository) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return ct.RowsAffected(), nil
}

// listSessions is a helper that executes a query expected to return session rows.
func (r *SessionRepository) listSessions(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.TokenHash,
			&s.SessionVersion,
			&s.UserAgent,
			&s.IPAddress,
			&s.CreatedAt,
			&s.LastUsedAt,
			&s.ExpiresAt,
			&s.RevokedAt,
			&s.RevokeReason,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	if sessions == nil {
		sessions = []domain.Session{}
	}

	return sessions, nil
}

// RevokedTokenRepository implements repository.RevokedTokenRepository using PostgreSQL.
type RevokedTokenRepository struct {
	db DB
}

// NewRevokedTokenRepository creates a new PostgreSQL-backed revoked token repository.
func NewRevokedTokenRepository(db DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// ListRecent returns the newest archived hashes, up to limit.
func (r *RevokedTokenRepository) ListRecent(ctx context.Context, limit int) ([]domain.RevokedToken, error) {
	query := `
		SELECT id, session_id, user_id, token_hash, revoked_at
		FROM revoked_refresh_tokens
		ORDER BY revoked_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list revoked tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.RevokedToken
	for rows.Next() {
		var t domain.RevokedToken
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserID, &t.TokenHash, &t.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan revoked token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked token rows: %w", err)
	}

	if tokens == nil {
		tokens = []domain.RevokedToken{}
	}

	return tokens, nil
}

// PruneOlderThan deletes archived hashes revoked before the cutoff.
func (r *RevokedTokenRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM revoked_refresh_tokens WHERE revoked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune revoked tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
