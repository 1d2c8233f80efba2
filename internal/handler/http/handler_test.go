package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/event"
	"github.com/auric/api/internal/service"
	"github.com/auric/api/pkg/middleware"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByUserID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) CreateKycSubmission(ctx context.Context, sub *domain.KycSubmission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockUserRepo) GetLatestKycSubmission(ctx context.Context, userID string) (*domain.KycSubmission, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KycSubmission), args.Error(1)
}

type mockOtpRepo struct {
	mock.Mock
}

func (m *mockOtpRepo) Create(ctx context.Context, challenge *domain.OtpChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *mockOtpRepo) GetLatestActive(ctx context.Context, channel, target, purpose string, now time.Time) (*domain.OtpChallenge, error) {
	args := m.Called(ctx, channel, target, purpose, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OtpChallenge), args.Error(1)
}

func (m *mockOtpRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockOtpRepo) Consume(ctx context.Context, id string, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *mockOtpRepo) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepo) ListByUser(ctx context.Context, userID string, includeRevoked bool, now time.Time) ([]domain.Session, error) {
	args := m.Called(ctx, userID, includeRevoked, now)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Session, error) {
	args := m.Called(ctx, userID, now, limit)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepo) ListActiveCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepo) Rotate(ctx context.Context, sessionID, oldHash, newHash string, expiresAt, lastUsedAt time.Time) error {
	args := m.Called(ctx, sessionID, oldHash, newHash, expiresAt, lastUsedAt)
	return args.Error(0)
}

func (m *mockSessionRepo) Revoke(ctx context.Context, sessionID, reason string, now time.Time) error {
	args := m.Called(ctx, sessionID, reason, now)
	return args.Error(0)
}

func (m *mockSessionRepo) RevokeOwned(ctx context.Context, sessionID, userID, reason string, now time.Time) (bool, error) {
	args := m.Called(ctx, sessionID, userID, reason, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) RevokeAllForUser(ctx context.Context, userID, keepID, reason string, now time.Time) (int64, error) {
	args := m.Called(ctx, userID, keepID, reason, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockRevokedRepo struct {
	mock.Mock
}

func (m *mockRevokedRepo) ListRecent(ctx context.Context, limit int) ([]domain.RevokedToken, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.RevokedToken), args.Error(1)
}

func (m *mockRevokedRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockWalletRepo struct {
	mock.Mock
}

func (m *mockWalletRepo) CreateIfAbsent(ctx context.Context, userID, currency string) error {
	args := m.Called(ctx, userID, currency)
	return args.Error(0)
}

func (m *mockWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *mockWalletRepo) Deposit(ctx context.Context, userID string, amount int64, reference string) (*domain.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WalletTransaction), args.Error(1)
}

func (m *mockWalletRepo) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.WalletTransaction, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]domain.WalletTransaction), args.Int(1), args.Error(2)
}

// nullSender swallows codes.
type nullSender struct{}

func (nullSender) Name() string                                 { return "null" }
func (nullSender) Send(_ context.Context, _, _, _ string) error { return nil }

// openLimiter always allows.
type openLimiter struct{}

func (openLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }

// ============================================================================
// Test Helpers
// ============================================================================

const testUserID = "IND004237"
const testSessionID = "550e8400-e29b-41d4-a716-446655440001"

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func handlerTestProducer() *event.Producer {
	return event.NewProducer(nil, handlerTestLogger())
}

type handlerFixture struct {
	userRepo    *mockUserRepo
	otpRepo     *mockOtpRepo
	sessionRepo *mockSessionRepo
	revokedRepo *mockRevokedRepo
	walletRepo  *mockWalletRepo

	userService    *service.UserService
	otpService     *service.OtpService
	sessionService *service.SessionService
	walletService  *service.WalletService
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		userRepo:    new(mockUserRepo),
		otpRepo:     new(mockOtpRepo),
		sessionRepo: new(mockSessionRepo),
		revokedRepo: new(mockRevokedRepo),
		walletRepo:  new(mockWalletRepo),
	}

	logger := handlerTestLogger()
	jwtManager := auth.NewJWTManager("test-secret-key-for-testing", "auric", "auric.app", 15*time.Minute)

	f.otpService = service.NewOtpService(f.otpRepo, nullSender{}, openLimiter{}, handlerTestProducer(), service.DefaultOtpConfig(), logger)
	f.sessionService = service.NewSessionService(f.sessionRepo, f.revokedRepo, f.userRepo, jwtManager, handlerTestProducer(), service.DefaultSessionConfig(), logger)
	f.userService = service.NewUserService(f.userRepo, f.walletRepo, f.otpService, f.sessionService, handlerTestProducer(), service.UserConfig{UserIDPrefix: "IND"}, logger)
	f.walletService = service.NewWalletService(f.walletRepo, handlerTestProducer(), logger)

	return f
}

// fakeTokenValidator returns a middleware.TokenValidator that always succeeds
// with the given claims.
func fakeTokenValidator(userID, sessionID string) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		return &middleware.Claims{
			UserID:         userID,
			SessionID:      sessionID,
			SessionVersion: 1,
			Role:           domain.RoleUser,
			KycStatus:      domain.KycUnverified,
		}, nil
	}
}

// setupSessionRouter mirrors the production session routes.
func setupSessionRouter(f *handlerFixture) *chi.Mux {
	h := NewSessionHandler(f.sessionService, cookieWriter{}, handlerTestLogger())

	r := chi.NewRouter()
	r.Route("/api/v1/session", func(r chi.Router) {
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(middleware.Auth(fakeTokenValidator(testUserID, testSessionID)))
		r.Get("/", h.List)
		r.Delete("/{id}", h.Revoke)
		r.Post("/revoke-others", h.RevokeOthers)
	})
	return r
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
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

// cookieByName finds a Set-Cookie entry in the recorded response.
func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
