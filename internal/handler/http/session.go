package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/auric/api/internal/auth"
	"github.com/auric/api/internal/service"
	apperrors "github.com/auric/api/pkg/errors"
	"github.com/auric/api/pkg/httputil"
	"github.com/auric/api/pkg/middleware"
)

// SessionHandler handles HTTP requests for the session lifecycle endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	cookies  cookieWriter
	logger   *slog.Logger
}

// NewSessionHandler creates a new session HTTP handler.
func NewSessionHandler(sessions *service.SessionService, cookies cookieWriter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RefreshRequest is the optional JSON request body carrying a refresh token
// for clients that cannot use cookies or headers.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Response types ---

// RefreshResponse carries the rotated tokens. RefreshToken is empty for
// cookie-origin requests, which receive the token via Set-Cookie instead.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at"`
	Session      any    `json:"session"`
}

// --- Handlers ---

// decodeBodyToken reads the optional JSON body and returns the refresh_token
// field if present. An unreadable body is treated as absent.
func decodeBodyToken(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// Refresh handles POST /api/v1/session/refresh
//
// The flow is strictly ordered: extract the token, enforce CSRF for
// cookie-origin presentations, run reuse detection, and only then rotate.
// A failure at any earlier step must not touch token material.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	extracted, ok := extractRefreshToken(r, decodeBodyToken(r))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "missing refresh token"},
		})
		return
	}

	if extracted.Source == sourceCookie && !checkCSRF(r) {
		writeJSON(w, http.StatusForbidden, response{
			Error: &errorResponse{Code: "CSRF_MISMATCH", Message: "missing or mismatched CSRF token"},
		})
		return
	}

	reused, err := h.sessions.DetectReuse(r.Context(), extracted.Token)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if reused != nil {
		if extracted.Source == sourceCookie {
			h.cookies.clearRefreshCookies(w)
		}
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{
				Code:    "TOKEN_REUSE_DETECTED",
				Message: "suspicious activity detected, session revoked, please log in again",
			},
		})
		return
	}

	session, tokens, err := h.sessions.Rotate(r.Context(), extracted.Token)
	if err != nil {
		if extracted.Source == sourceCookie {
			h.cookies.clearRefreshCookies(w)
		}
		writeAppError(w, r, err)
		return
	}

	resp := RefreshResponse{
		AccessToken: tokens.AccessToken,
		ExpiresAt:   session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Session:     session,
	}

	// Delivery mirrors receipt: cookie presentations get a fresh cookie pair,
	// everything else gets the raw token in the body. Never both.
	if extracted.Source == sourceCookie {
		csrf, err := auth.NewCSRFToken()
		if err != nil {
			writeAppError(w, r, apperrors.Internal(err))
			return
		}
		h.cookies.setRefreshCookies(w, tokens.RefreshToken, csrf, session.ExpiresAt)
	} else {
		resp.RefreshToken = tokens.RefreshToken
	}

	writeJSON(w, http.StatusOK, response{Data: resp})
}

// Logout handles POST /api/v1/session/logout
//
// Logout is idempotent: a missing or unknown token still returns 200 and
// never reveals whether the token was valid.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	extracted, ok := extractRefreshToken(r, decodeBodyToken(r))
	if !ok {
		writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "no active session"}})
		return
	}

	if _, err := h.sessions.Logout(r.Context(), extracted.Token); err != nil {
		writeAppError(w, r, err)
		return
	}

	if extracted.Source == sourceCookie {
		h.cookies.clearRefreshCookies(w)
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "logged out"}})
}

// List handles GET /api/v1/sessions
//
// Only live sessions are returned unless ?include_revoked=true is passed.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	includeRevoked := r.URL.Query().Get("include_revoked") == "true"

	sessions, err := h.sessions.List(r.Context(), userID, includeRevoked)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: sessions})
}

// Revoke handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	sessionID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.sessions.RevokeOwned(r.Context(), userID, sessionID.String()); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"id": sessionID.String(), "status": "revoked"}})
}

// RevokeOthers handles POST /api/v1/sessions/revoke-others
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	n, err := h.sessions.RevokeOthers(r.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{"revoked": n}})
}
