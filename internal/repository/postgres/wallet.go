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

// WalletRepository implements repository.WalletRepository using PostgreSQL.
type WalletRepository struct {
	db DB
}

// NewWalletRepository creates a new PostgreSQL-backed wallet repository.
func NewWalletRepository(db DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreateIfAbsent inserts a zero-balance wallet for the user unless one
// already exists.
func (r *WalletRepository) CreateIfAbsent(ctx context.Context, userID, currency string) error {
	query := `
		INSERT INTO wallets (id, user_id, currency, balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (user_id) DO NOTHING`

	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, query, uuid.New().String(), userID, currency, now)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}

	return nil
}

// GetByUserID retrieves the user's wallet.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, currency, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1`

	var w domain.Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&w.ID,
		&w.UserID,
		&w.Currency,
		&w.Balance,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	return &w, nil
}

// Deposit credits the wallet and writes the ledger entry in one transaction.
func (r *WalletRepository) Deposit(ctx context.Context, userID string, amount int64, reference string) (*domain.WalletTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	var walletID string
	var balanceAfter int64
	err = tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3
		RETURNING id, balance`,
		amount, now, userID,
	).Scan(&walletID, &balanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("credit wallet: %w", err)
	}

	txn := &domain.WalletTransaction{
		ID:           uuid.New().String(),
		WalletID:     walletID,
		Type:         domain.TxDeposit,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reference:    reference,
		CreatedAt:    now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, type, amount, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txn.ID, txn.WalletID, txn.Type, txn.Amount, txn.BalanceAfter, txn.Reference, txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert wallet transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return txn, nil
}

// ListTransactions returns the wallet's ledger entries, newest first, along
// with the total count for pagination.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1`,
		userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count wallet transactions: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.wallet_id, t.type, t.amount, t.balance_after, t.reference, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.WalletTransaction
	for rows.Next() {
		var t domain.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Reference, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan wallet transaction row: %w", err)
		}
		txns = append(txns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallet transaction rows: %w", err)
	}

	if txns == nil {
		txns = []domain.WalletTransaction{}
	}

	return txns, total, nil
}
