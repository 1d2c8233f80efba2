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

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, user_id, phone, phone_verified, email, email_verified, first_name, last_name, date_of_birth, role, kyc_status, is_active, created_at, updated_at`

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, user_id, phone, phone_verified, email, email_verified, first_name, last_name, date_of_birth, role, kyc_status, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.UserID,
		u.Phone,
		u.PhoneVerified,
		u.Email,
		u.EmailVerified,
		u.FirstName,
		u.LastName,
		u.DateOfBirth,
		u.Role,
		u.KycStatus,
		u.IsActive,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "identity", u.UserID)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by internal primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

// GetByUserID retrieves a user by business identifier.
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return r.scanUser(ctx, query, userID)
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`
	return r.scanUser(ctx, query, phone)
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, query, email)
}

// Update modifies an existing user in the database.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET phone = $1, phone_verified = $2, email = $3, email_verified = $4,
		    first_name = $5, last_name = $6, date_of_birth = $7,
		    role = $8, kyc_status = $9, is_active = $10, updated_at = $11
		WHERE id = $12`

	ct, err := r.db.Exec(ctx, query,
		u.Phone,
		u.PhoneVerified,
		u.Email,
		u.EmailVerified,
		u.FirstName,
		u.LastName,
		u.DateOfBirth,
		u.Role,
		u.KycStatus,
		u.IsActive,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// CreateKycSubmission records a KYC submission and marks the user PENDING
// within a transaction.
func (r *UserRepository) CreateKycSubmission(ctx context.Context, sub *domain.KycSubmission) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO kyc_submissions (id, user_id, document_type, document_number, full_name, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID,
		sub.UserID,
		sub.DocumentType,
		sub.DocumentNumber,
		sub.FullName,
		sub.Status,
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert kyc submission: %w", err)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE users SET kyc_status = $1, updated_at = $2 WHERE user_id = $3`,
		domain.KycPending, sub.SubmittedAt, sub.UserID,
	)
	if err != nil {
		return fmt.Errorf("update user kyc status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", sub.UserID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetLatestKycSubmission returns the user's most recent KYC submission.
func (r *UserRepository) GetLatestKycSubmission(ctx context.Context, userID string) (*domain.KycSubmission, error) {
	query := `
		SELECT id, user_id, document_type, document_number, full_name, status, submitted_at
		FROM kyc_submissions
		WHERE user_id = $1
		ORDER BY submitted_at DESC
		LIMIT 1`

	var sub domain.KycSubmission
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&sub.ID,
		&sub.UserID,
		&sub.DocumentType,
		&sub.DocumentNumber,
		&sub.FullName,
		&sub.Status,
		&sub.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan kyc submission: %w", err)
	}

	return &sub, nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.UserID,
		&u.Phone,
		&u.PhoneVerified,
		&u.Email,
		&u.EmailVerified,
		&u.FirstName,
		&u.LastName,
		&u.DateOfBirth,
		&u.Role,
		&u.KycStatus,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
