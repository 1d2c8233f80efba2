package repository

import (
	"context"
	"time"

	"github.com/auric/api/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by internal primary key.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUserID retrieves a user by business identifier.
	GetByUserID(ctx context.Context, userID string) (*domain.User, error)

	// GetByPhone retrieves a user by phone number.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// GetByEmail retrieves a user by email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user in the store.
	Update(ctx context.Context, user *domain.User) error

	// CreateKycSubmission records a KYC submission and marks the user PENDING.
	CreateKycSubmission(ctx context.Context, sub *domain.KycSubmission) error

	// GetLatestKycSubmission returns the user's most recent KYC submission.
	GetLatestKycSubmission(ctx context.Context, userID string) (*domain.KycSubmission, error)
}

// OtpChallengeRepository defines the interface for one-time code persistence.
type OtpChallengeRepository interface {
	// Create inserts a new challenge.
	Create(ctx context.Context, challenge *domain.OtpChallenge) error

	// GetLatestActive returns the newest unconsumed, unexpired challenge for
	// the given channel, target, and purpose.
	GetLatestActive(ctx context.Context, channel, target, purpose string, now time.Time) (*domain.OtpChallenge, error)

	// IncrementAttempts atomically bumps the attempt counter and returns the
	// new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// Consume marks the challenge consumed and invalidates any older active
	// challenges for the same channel, target, and purpose in one transaction.
	Consume(ctx context.Context, id string, now time.Time) error

	// PruneExpired deletes challenges that expired before the cutoff and
	// returns the number removed.
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository defines the interface for session persistence operations.
type SessionRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, session *domain.Session) error

	// GetByID retrieves a session by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// ListByUser returns the user's sessions, newest first. Unless
	// includeRevoked is set, revoked and expired sessions are filtered out.
	ListByUser(ctx context.Context, userID string, includeRevoked bool, now time.Time) ([]domain.Session, error)

	// ListActiveByUser returns the user's unrevoked, unexpired sessions,
	// newest first, up to limit.
	ListActiveByUser(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Session, error)

	// ListActiveCandidates returns the most recently used unrevoked,
	// unexpired sessions across all users, up to limit. This is the bounded
	// scan used to match an opaque refresh token against stored hashes.
	ListActiveCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Session, error)

	// Rotate replaces the session's token hash and extends its expiry while
	// archiving the previous hash to the revoked tokens table, atomically.
	Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt, lastUsedAt time.Time) error

	// Revoke marks the session revoked with the given reason, clears its
	// token hash, and bumps its session version. Revoking an already-revoked
	// session is a no-op.
	Revoke(ctx context.Context, sessionID, reason string, now time.Time) error

	// RevokeOwned revokes the session only if it belongs to the user.
	// Returns false when no matching row exists.
	RevokeOwned(ctx context.Context, sessionID, userID, reason string, now time.Time) (bool, error)

	// RevokeAllForUser revokes every active session for the user except the
	// one identified by keepID (pass empty to revoke all). Returns the number
	// of sessions revoked.
	RevokeAllForUser(ctx context.Context, userID, keepID, reason string, now time.Time) (int64, error)

	// PruneExpired deletes sessions that expired before the cutoff and
	// returns the number removed.
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevokedTokenRepository defines the interface for archived refresh-token
// hashes used in reuse detection.
type RevokedTokenRepository interface {
	// ListRecent returns the newest archived hashes across all users, up to
	// limit. This is the bounded scan used for reuse detection.
	ListRecent(ctx context.Context, limit int) ([]domain.RevokedToken, error)

	// PruneOlderThan deletes archived hashes revoked before the cutoff and
	// returns the number removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WalletRepository defines the interface for wallet persistence operations.
type WalletRepository interface {
	// CreateIfAbsent inserts a zero-balance wallet for the user unless one
	// already exists.
	CreateIfAbsent(ctx context.Context, userID, currency string) error

	// GetByUserID retrieves the user's wallet.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// Deposit credits the wallet and writes the ledger entry in one
	// transaction, returning the resulting transaction row.
	Deposit(ctx context.Context, userID string, amount int64, reference string) (*domain.WalletTransaction, error)

	// ListTransactions returns the wallet's ledger entries, newest first.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, int, error)
}
