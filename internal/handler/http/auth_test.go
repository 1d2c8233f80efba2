package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/auric/api/internal/domain"
	apperrors "github.com/auric/api/pkg/errors"
)

func setupAuthRouter(f *handlerFixture) *chi.Mux {
	h := NewAuthHandler(f.userService, f.otpService, cookieWriter{}, handlerTestLogger())

	r := chi.NewRouter()
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/otp/send", h.SendCode)
		r.Post("/otp/verify", h.VerifyCode)
	})
	return r
}

func postJSON(router *chi.Mux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginChallenge(t *testing.T, code string) *domain.OtpChallenge {
	t.Helper()
	now := time.Now().UTC()
	return &domain.OtpChallenge{
		ID:        "challenge-1",
		Channel:   domain.ChannelSMS,
		Target:    "+919876543210",
		Purpose:   domain.PurposeLogin,
		CodeHash:  hashForTest(t, code),
		Attempts:  0,
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}
}

// ============================================================================
// SendCode
// ============================================================================

func TestSendCode_Success(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	f.otpRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	rec := postJSON(router, "/api/v1/auth/otp/send", `{"channel":"sms","phone":"+919876543210"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, data["expires_at"])
	f.otpRepo.AssertExpectations(t)
}

func TestSendCode_MissingTarget(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	rec := postJSON(router, "/api/v1/auth/otp/send", `{"channel":"sms"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Fields)
	f.otpRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendCode_UnknownChannel(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	rec := postJSON(router, "/api/v1/auth/otp/send", `{"channel":"carrier-pigeon","phone":"+919876543210"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestSendCode_RequiresJSONContentType(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/send",
		bytes.NewBufferString(`{"channel":"sms","phone":"+919876543210"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// VerifyCode
// ============================================================================

func TestVerifyCode_NewUserBodyDelivery(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	f.otpRepo.On("GetLatestActive", mock.Anything, domain.ChannelSMS, "+919876543210", domain.PurposeLogin, mock.Anything).
		Return(loginChallenge(t, "042137"), nil)
	f.otpRepo.On("IncrementAttempts", mock.Anything, "challenge-1").Return(1, nil)
	f.otpRepo.On("Consume", mock.Anything, "challenge-1", mock.Anything).Return(nil)

	f.userRepo.On("GetByPhone", mock.Anything, "+919876543210").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	f.walletRepo.On("CreateIfAbsent", mock.Anything, mock.AnythingOfType("string"), "INR").Return(nil)
	f.sessionRepo.On("ListActiveByUser", mock.Anything, mock.AnythingOfType("string"), mock.Anything, 50).
		Return([]domain.Session{}, nil)
	f.sessionRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)

	rec := postJSON(router, "/api/v1/auth/otp/verify",
		`{"channel":"sms","phone":"+919876543210","code":"042137","delivery":"body"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["is_new"])
	assert.NotEmpty(t, data["access_token"])
	assert.NotEmpty(t, data["refresh_token"])
	assert.Empty(t, rec.Result().Cookies())

	user, ok := data["user"].(map[string]any)
	require.True(t, ok)
	assert.Regexp(t, `^IND\d{6}$`, user["user_id"])
	assert.Equal(t, true, user["phone_verified"])
}

func TestVerifyCode_ExistingUserCookieDelivery(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	f.otpRepo.On("GetLatestActive", mock.Anything, domain.ChannelSMS, "+919876543210", domain.PurposeLogin, mock.Anything).
		Return(loginChallenge(t, "042137"), nil)
	f.otpRepo.On("IncrementAttempts", mock.Anything, "challenge-1").Return(1, nil)
	f.otpRepo.On("Consume", mock.Anything, "challenge-1", mock.Anything).Return(nil)

	f.userRepo.On("GetByPhone", mock.Anything, "+919876543210").Return(activeUser(), nil)
	f.sessionRepo.On("ListActiveByUser", mock.Anything, testUserID, mock.Anything, 50).
		Return([]domain.Session{}, nil)
	f.sessionRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Session")).Return(nil)

	rec := postJSON(router, "/api/v1/auth/otp/verify",
		`{"channel":"sms","phone":"+919876543210","code":"042137","delivery":"cookie"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["is_new"])
	assert.NotEmpty(t, data["access_token"])
	assert.NotContains(t, data, "refresh_token")

	rt := cookieByName(rec, "auric_rt")
	require.NotNil(t, rt)
	assert.NotEmpty(t, rt.Value)
	assert.True(t, rt.HttpOnly)
	csrf := cookieByName(rec, "auric_csrf")
	require.NotNil(t, csrf)
	assert.NotEmpty(t, csrf.Value)

	f.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.walletRepo.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCode_WrongCode(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	f.otpRepo.On("GetLatestActive", mock.Anything, domain.ChannelSMS, "+919876543210", domain.PurposeLogin, mock.Anything).
		Return(loginChallenge(t, "042137"), nil)
	f.otpRepo.On("IncrementAttempts", mock.Anything, "challenge-1").Return(1, nil)

	rec := postJSON(router, "/api/v1/auth/otp/verify",
		`{"channel":"sms","phone":"+919876543210","code":"000000"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_CODE", resp.Error.Code)
	f.sessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerifyCode_AttemptsExhausted(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	f.otpRepo.On("GetLatestActive", mock.Anything, domain.ChannelSMS, "+919876543210", domain.PurposeLogin, mock.Anything).
		Return(loginChallenge(t, "042137"), nil)
	f.otpRepo.On("IncrementAttempts", mock.Anything, "challenge-1").Return(6, nil)

	rec := postJSON(router, "/api/v1/auth/otp/verify",
		`{"channel":"sms","phone":"+919876543210","code":"042137"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", resp.Error.Code)
}

func TestVerifyCode_BadCodeFormat(t *testing.T) {
	f := newHandlerFixture()
	router := setupAuthRouter(f)

	rec := postJSON(router, "/api/v1/auth/otp/verify",
		`{"channel":"sms","phone":"+919876543210","code":"12ab"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	f.otpRepo.AssertNotCalled(t, "GetLatestActive",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
