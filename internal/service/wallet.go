package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/event"
	"github.com/auric/api/internal/repository"
	apperrors "github.com/auric/api/pkg/errors"
)

// WalletService exposes the minimal ledger: balance, deposits, and history.
type WalletService struct {
	wallets  repository.WalletRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewWalletService creates the wallet service.
func NewWalletService(wallets repository.WalletRepository, producer *event.Producer, l *slog.Logger) *WalletService {
	return &WalletService{wallets: wallets, producer: producer, logger: l}
}

// Get returns the user's wallet.
func (s *WalletService) Get(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("wallet", userID)
		}
		return nil, err
	}
	return wallet, nil
}

// Deposit credits the wallet with a positive amount in minor units and
// records the ledger entry.
func (s *WalletService) Deposit(ctx context.Context, userID string, amount int64, reference string) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be positive")
	}

	txn, err := s.wallets.Deposit(ctx, userID, amount, reference)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("wallet", userID)
		}
		return nil, err
	}

	s.producer.WalletDeposited(ctx, txn.WalletID, userID, amount)
	s.logger.InfoContext(ctx, "wallet deposit",
		slog.String("user_id", userID),
		slog.String("transaction_id", txn.ID),
		slog.Int64("amount", amount),
	)

	return txn, nil
}

// ListTransactions returns a page of the wallet's ledger, newest first.
func (s *WalletService) ListTransactions(ctx context.Context, userID string, page, perPage int) ([]domain.WalletTransaction, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	return s.wallets.ListTransactions(ctx, userID, perPage, offset)
}
