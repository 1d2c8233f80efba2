package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/domain"
	"github.com/auric/api/internal/service"
	apperrors "github.com/auric/api/pkg/errors"
	"github.com/auric/api/pkg/validator"
)

// AuthHandler handles HTTP requests for the OTP login endpoints.
type AuthHandler struct {
	users   *service.UserService
	otp     *service.OtpService
	cookies cookieWriter
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(users *service.UserService, otp *service.OtpService, cookies cookieWriter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, otp: otp, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// SendCodeRequest is the JSON request body for requesting a one-time code.
type SendCodeRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms email"`
	Phone   string `json:"phone" validate:"required_if=Channel sms,omitempty,e164"`
	Email   string `json:"email" validate:"required_if=Channel email,omitempty,email"`
}

// VerifyCodeRequest is the JSON request body for verifying a code and
// logging in. Delivery selects how the refresh token is returned: "cookie"
// for browsers, "body" for native clients.
type VerifyCodeRequest struct {
	Channel  string `json:"channel" validate:"required,oneof=sms email"`
	Phone    string `json:"phone" validate:"required_if=Channel sms,omitempty,e164"`
	Email    string `json:"email" validate:"required_if=Channel email,omitempty,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Delivery string `json:"delivery" validate:"omitempty,oneof=cookie body"`
}

func (r *SendCodeRequest) target() string {
	if r.Channel == domain.ChannelSMS {
		return r.Phone
	}
	return r.Email
}

func (r *VerifyCodeRequest) target() string {
	if r.Channel == domain.ChannelSMS {
		return r.Phone
	}
	return r.Email
}

// --- Response types ---

// SendCodeResponse reports when the issued code expires.
type SendCodeResponse struct {
	ExpiresAt string `json:"expires_at"`
}

// LoginResponse wraps user data with tokens. RefreshToken is empty for
// cookie delivery.
type LoginResponse struct {
	User         any    `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IsNew        bool   `json:"is_new"`
	Session      any    `json:"session"`
}

// --- Handlers ---

// SendCode handles POST /api/v1/auth/otp/send
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	challenge, err := h.otp.SendCode(r.Context(), req.Channel, req.target(), domain.PurposeLogin)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Data: SendCodeResponse{ExpiresAt: challenge.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")},
	})
}

// VerifyCode handles POST /api/v1/auth/otp/verify
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	result, err := h.users.LoginWithOtp(r.Context(), req.Channel, req.target(), req.Code, r.UserAgent(), clientIP(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := LoginResponse{
		User:        result.User,
		AccessToken: result.Tokens.AccessToken,
		IsNew:       result.IsNew,
		Session:     result.Session,
	}

	if req.Delivery == string(sourceCookie) {
		csrf, err := auth.NewCSRFToken()
		if err != nil {
			writeAppError(w, r, apperrors.Internal(err))
			return
		}
		h.cookies.setRefreshCookies(w, result.Tokens.RefreshToken, csrf, result.Session.ExpiresAt)
	} else {
		resp.RefreshToken = result.Tokens.RefreshToken
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, response{Data: resp})
}

// clientIP extracts the originating client address, preferring the first
// entry of X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	return r.RemoteAddr
}
