package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	refreshTokenBytes = 32
	bcryptCost        = 12
)

// NewRefreshToken generates an opaque refresh token: 32 random bytes,
// base64url-encoded without padding. The token carries no structure; the
// server matches it against stored hashes.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCSRFToken generates the double-submit CSRF token paired with a
// cookie-delivered refresh token.
func NewCSRFToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashRefreshToken hashes a refresh token with bcrypt for storage.
func HashRefreshToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	return string(hash), nil
}

// CompareRefreshToken reports whether the presented token matches the stored
// bcrypt hash.
func CompareRefreshToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
