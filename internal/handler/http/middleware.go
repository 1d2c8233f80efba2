package http

import (
	"net/http"
	"strings"

	"github.com/auric/api/internal/service"
	"github.com/auric/api/pkg/middleware"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SessionGuard checks that the session referenced by the access token is
// still live and its version matches. A revoked session invalidates its
// outstanding access tokens immediately, not at token expiry.
func SessionGuard(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := middleware.ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, response{
					Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
				})
				return
			}

			if err := sessions.Validate(r.Context(), claims.SessionID, claims.SessionVersion); err != nil {
				writeAppError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
