package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const userIDDigits = 6

// normalizePrefix uppercases the input, strips non-alphanumerics, and keeps
// the first three characters, falling back to the default when nothing is left.
func normalizePrefix(input, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

// generateUserID produces a business identifier: a 3-character prefix plus a
// zero-padded 6-digit serial, e.g. IND004237. Collisions are handled by the
// caller retrying on unique violation.
func generateUserID(prefix, fallback string) (string, error) {
	p := normalizePrefix(prefix, fallback)
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return fmt.Sprintf("%s%0*d", p, userIDDigits, n.Int64()), nil
}
