package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/event"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUserID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) CreateKycSubmission(ctx context.Context, sub *domain.KycSubmission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockUserRepository) GetLatestKycSubmission(ctx context.Context, userID string) (*domain.KycSubmission, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KycSubmission), args.Error(1)
}

// --- Mock OTP Challenge Repository ---

type mockOtpChallengeRepository struct {
	mock.Mock
}

func (m *mockOtpChallengeRepository) Create(ctx context.Context, challenge *domain.OtpChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *mockOtpChallengeRepository) GetLatestActive(ctx context.Context, channel, target, purpose string, now time.Time) (*domain.OtpChallenge, error) {
	args := m.Called(ctx, channel, target, purpose, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OtpChallenge), args.Error(1)
}

func (m *mockOtpChallengeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockOtpChallengeRepository) Consume(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *mockOtpChallengeRepository) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Session Repository ---

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) ListByUser(ctx context.Context, userID string, includeRevoked bool, now time.Time) ([]domain.Session, error) {
	args := m.Called(ctx, userID, includeRevoked, now)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Session, error) {
	args := m.Called(ctx, userID, now, limit)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) ListActiveCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt, lastUsedAt time.Time) error {
	args := m.Called(ctx, sessionID, oldHash, newHash, expiresAt, lastUsedAt)
	return args.Error(0)
}

func (m *mockSessionRepository) Revoke(ctx context.Context, sessionID, reason string, now time.Time) error {
	args := m.Called(ctx, sessionID, reason, now)
	return args.Error(0)
}

func (m *mockSessionRepository) RevokeOwned(ctx context.Context, sessionID, userID, reason string, now time.Time) (bool, error) {
	args := m.Called(ctx, sessionID, userID, reason, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepository) RevokeAllForUser(ctx context.Context, userID, keepID, reason string, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, keepID, reason, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepository) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Revoked Token Repository ---

type mockRevokedTokenRepository struct {
	mock.Mock
}

func (m *mockRevokedTokenRepository) ListRecent(ctx context.Context, limit int) ([]domain.RevokedToken, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.RevokedToken), args.Error(1)
}

func (m *mockRevokedTokenRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Wallet Repository ---

type mockWalletRepository struct {
	mock.Mock
}

func (m *mockWalletRepository) CreateIfAbsent(ctx context.Context, userID, currency string) error {
	args := m.Called(ctx, userID, currency)
	return args.Error(0)
}

func (m *mockWalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepository) Deposit(ctx context.Context, userID string, amount int64, reference string) (*domain.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletTransaction), args.Error(1)
}

func (m *mockWalletRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]domain.WalletTransaction), args.Int(1), args.Error(2)
}

// --- Fake Sender and Rate Limiter ---

// fakeSender records the codes it delivers.
type fakeSender struct {
	lastChannel string
	lastTarget  string
	lastCode    string
	err         error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, channel, target, code string) error {
	if f.err != nil {
		return f.err
	}
	f.lastChannel = channel
	f.lastTarget = target
	f.lastCode = code
	return nil
}

// stubLimiter returns a fixed decision.
type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return s.allowed, s.err
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTManager() *auth.JWTManager {
	return auth.NewJWTManager("test-secret-key-for-testing", "auric", "auric.app", 15*time.Minute)
}

// newTestEventProducer returns a producer with no backing publisher; publishes
// become no-ops.
func newTestEventProducer() *event.Producer {
	return event.NewProducer(nil, newTestLogger())
}

func strPtr(s string) *string {
	return &s
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(t *testing.T, value string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(value), 4)
	if err != nil {
		t.Fatalf("hash test value: %v", err)
	}
	return string(h)
}
