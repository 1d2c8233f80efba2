package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "IND", "IND"},
		{"lowercase", "ind", "IND"},
		{"too long", "INDIA", "IND"},
		{"strips punctuation", "i-n.d!", "IND"},
		{"digits allowed", "a1b2", "A1B"},
		{"short input kept", "US", "US"},
		{"empty falls back", "", "IND"},
		{"only punctuation falls back", "---", "IND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePrefix(tt.input, "IND"))
		})
	}
}

func TestGenerateUserID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := generateUserID("IND", "IND")
		require.NoError(t, err)
		assert.Regexp(t, `^IND\d{6}$`, id)
		seen[id] = true
	}

	// Not a strict guarantee, but 100 collisions would mean a broken generator.
	assert.Greater(t, len(seen), 1)
}
