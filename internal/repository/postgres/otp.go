package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/auric/api/internal/domain"
	apperrors "github.com/auric/api/pkg/errors"
)

// OtpChallengeRepository implements repository.OtpChallengeRepository using PostgreSQL.
type OtpChallengeRepository struct {
	db DB
}

// NewOtpChallengeRepository creates a new PostgreSQL-backed OTP challenge repository.
func NewOtpChallengeRepository(db DB) *OtpChallengeRepository {
	return &OtpChallengeRepository{db: db}
}

// Create inserts a new challenge into the database.
func (r *OtpChallengeRepository) Create(ctx context.Context, c *domain.OtpChallenge) error {
	query := `
		INSERT INTO otp_challenges (id, channel, target, purpose, code_hash, attempts, consumed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.Channel,
		c.Target,
		c.Purpose,
		c.CodeHash,
		c.Attempts,
		c.ConsumedAt,
		c.ExpiresAt,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert otp challenge: %w", err)
	}

	return nil
}

// GetLatestActive returns the newest unconsumed, unexpired challenge for the
// given channel, target, and purpose.
func (r *OtpChallengeRepository) GetLatestActive(ctx context.Context, channel, target, purpose string, now time.Time) (*domain.OtpChallenge, error) {
	query := `
		SELECT id, channel, target, purpose, code_hash, attempts, consumed_at, expires_at, created_at
		FROM otp_challenges
		WHERE channel = $1 AND target = $2 AND purpose = $3
		  AND consumed_at IS NULL AND expires_at > $4
		ORDER BY created_at DESC
		LIMIT 1`

	var c domain.OtpChallenge
	err := r.db.QueryRow(ctx, query, channel, target, purpose, now).Scan(
		&c.ID,
		&c.Channel,
		&c.Target,
		&c.Purpose,
		&c.CodeHash,
		&c.Attempts,
		&c.ConsumedAt,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan otp challenge: %w", err)
	}

	return &c, nil
}

// IncrementAttempts atomically bumps the attempt counter and returns the new
// count. The increment happens in the database so concurrent verifications
// cannot read the same counter value.
func (r *OtpChallengeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`

	var attempts int
	err := r.db.QueryRow(ctx, query, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}

	return attempts, nil
}

// Consume marks the challenge consumed and invalidates any older active
// challenges for the same channel, target, and purpose in one transaction.
func (r *OtpChallengeRepository) Consume(ctx context.Context, id string, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE otp_challenges SET consumed_at = $1 WHERE id = $2 AND consumed_at IS NULL`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("consume otp challenge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("otp challenge", id)
	}

	_, err = tx.Exec(ctx, `
		UPDATE otp_challenges SET consumed_at = $1
		WHERE consumed_at IS NULL
		  AND (channel, target, purpose) = (SELECT channel, target, purpose FROM otp_challenges WHERE id = $2)
		  AND id <> $2`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("supersede older otp challenges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// PruneExpired deletes challenges that expired before the cutoff.
func (r *OtpChallengeRepository) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM otp_challenges WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune otp challenges: %w", err)
	}
	return ct.RowsAffected(), nil
}
