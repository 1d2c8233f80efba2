package domain

import (
	"time"
)

// Role values for User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// KYC status values for User.KycStatus.
const (
	KycUnverified = "UNVERIFIED"
	KycPending    = "PENDING"
	KycVerified   = "VERIFIED"
	KycRejected   = "REJECTED"
)

// User represents a registered user in the system. UserID is the
// business-facing identifier (prefix plus six digits); ID is the internal
// primary key.
type User struct {
	ID            string     `json:"-"`
	UserID        string     `json:"user_id"`
	Phone         string     `json:"phone,omitempty"`
	PhoneVerified bool       `json:"phone_verified"`
	Email         string     `json:"email,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	Role          string     `json:"role"`
	KycStatus     string     `json:"kyc_status"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// KycSubmission holds the identity details a user submits for verification.
type KycSubmission struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"-"`
	FullName       string    `json:"full_name"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// TokenPair holds an access and refresh token pair issued at login or rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
