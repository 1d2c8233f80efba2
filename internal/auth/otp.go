package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const otpCodeDigits = 6

// NewOTPCode generates a 6-digit numeric one-time code using crypto/rand.
// Leading zeros are preserved.
func NewOTPCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpCodeDigits, n.Int64()), nil
}

// HashOTPCode hashes a one-time code with bcrypt for storage.
func HashOTPCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash otp code: %w", err)
	}
	return string(hash), nil
}

// CompareOTPCode reports whether the submitted code matches the stored hash.
func CompareOTPCode(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
