package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims for an access token. SessionID and
// SessionVersion bind the token to a concrete session row; revoking the
// session or bumping its version invalidates outstanding access tokens.
type Claims struct {
	SessionID      string `json:"sid"`
	SessionVersion int    `json:"sv"`
	Role           string `json:"role"`
	KycStatus      string `json:"kyc"`
	jwt.RegisteredClaims
}

// JWTManager handles access token generation and validation.
type JWTManager struct {
	secret       []byte
	issuer       string
	audience     string
	accessExpiry time.Duration

	now func() time.Time
}

// NewJWTManager creates a new JWT manager with the given secret, issuer,
// audience, and access token expiry.
func NewJWTManager(secret, issuer, audience string, accessExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:       []byte(secret),
		issuer:       issuer,
		audience:     audience,
		accessExpiry: accessExpiry,
		now:          time.Now,
	}
}

// GenerateAccessToken creates a signed HS256 access token for the given user
// and session.
func (m *JWTManager) GenerateAccessToken(userID, sessionID string, sessionVersion int, role, kycStatus string) (string, error) {
	now := m.now().UTC()
	claims := &Claims{
		SessionID:      sessionID,
		SessionVersion: sessionVersion,
		Role:           role,
		KycStatus:      kycStatus,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessExpiry)),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signedToken, nil
}

// ValidateAccessToken parses and validates an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return claims, nil
}
