package http

import (
	"crypto/subtle"
	"net/http"
	"time"
)

const (
	refreshCookieName = "auric_rt"
	csrfCookieName    = "auric_csrf"
	refreshHeaderName = "X-Refresh-Token"
	csrfHeaderName    = "X-CSRF-Token"
	refreshCookiePath = "/api/v1/session"

	// Body-supplied tokens shorter than an encoded 32-byte token are rejected
	// outright; they cannot be genuine.
	minBodyTokenLen = 40
)

// tokenSource identifies which transport carried the refresh token.
type tokenSource string

const (
	sourceCookie tokenSource = "cookie"
	sourceHeader tokenSource = "header"
	sourceBody   tokenSource = "body"
)

// extractedToken is the tagged result of refresh token extraction.
type extractedToken struct {
	Token  string
	Source tokenSource
}

// extractRefreshToken finds the refresh token in the request, checking
// transports in fixed precedence: cookie, header, then body. The bodyToken
// argument is the already-decoded refresh_token field from the JSON body, if
// any. Returns false when no transport carried a token.
func extractRefreshToken(r *http.Request, bodyToken string) (extractedToken, bool) {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return extractedToken{Token: c.Value, Source: sourceCookie}, true
	}

	if h := r.Header.Get(refreshHeaderName); h != "" {
		return extractedToken{Token: h, Source: sourceHeader}, true
	}

	if len(bodyToken) >= minBodyTokenLen {
		return extractedToken{Token: bodyToken, Source: sourceBody}, true
	}

	return extractedToken{}, false
}

// checkCSRF enforces the double-submit check for cookie-borne refresh tokens:
// the client must echo the CSRF cookie's value in the CSRF header. Only
// called when the token source is the cookie; header and body presentations
// are not CSRF-exposed.
func checkCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}

// cookieWriter sets and clears the refresh and CSRF cookie pair.
type cookieWriter struct {
	domain string
	secure bool
}

// setRefreshCookies writes the httpOnly refresh cookie and the JS-readable
// CSRF cookie. The CSRF cookie must be readable so the client can echo it.
func (c cookieWriter) setRefreshCookies(w http.ResponseWriter, refreshToken, csrfToken string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Domain:   c.domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     refreshCookiePath,
		Domain:   c.domain,
		Expires:  expiresAt,
		HttpOnly: false,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearRefreshCookies expires both cookies.
func (c cookieWriter) clearRefreshCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: false,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
