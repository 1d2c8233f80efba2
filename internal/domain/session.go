package domain

import (
	"time"
)

// Session represents a device login. The refresh token itself is never
// stored; only its bcrypt hash. A revoked session keeps its row (with the
// hash cleared) so listings can show revoked history.
type Session struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TokenHash      *string    `json:"-"`
	SessionVersion int        `json:"session_version"`
	UserAgent      string     `json:"user_agent,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     time.Time  `json:"last_used_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokeReason   *string    `json:"revoke_reason,omitempty"`
}

// Reasons recorded when a session is revoked.
const (
	RevokeReasonLogout       = "logout"
	RevokeReasonTokenReuse   = "token_reuse"
	RevokeReasonSessionCap   = "session_cap"
	RevokeReasonUserRevoked  = "user_revoked"
	RevokeReasonRevokeOthers = "revoke_others"
)

// Usable reports whether the session can still authenticate at the given
// instant: not revoked, not expired, and still holding a token hash.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && s.TokenHash != nil && now.Before(s.ExpiresAt)
}

// RevokedToken is an archived refresh-token hash from a completed rotation.
// Presenting a token matching one of these rows is proof of token reuse.
type RevokedToken struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	RevokedAt time.Time `json:"revoked_at"`
}
