package domain

import (
	"time"
)

// OTP delivery channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// OTP purposes. Login challenges bootstrap users; email verification
// challenges attach an address to an existing account.
const (
	PurposeLogin       = "login"
	PurposeVerifyEmail = "verify_email"
)

// OtpChallenge is a single issued one-time code. The code itself is never
// stored; only its bcrypt hash.
type OtpChallenge struct {
	ID         string     `json:"id"`
	Channel    string     `json:"channel"`
	Target     string     `json:"target"`
	Purpose    string     `json:"purpose"`
	CodeHash   string     `json:"-"`
	Attempts   int        `json:"attempts"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Active reports whether the challenge can still be verified at the given
// instant: not consumed and not expired.
func (c *OtpChallenge) Active(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
