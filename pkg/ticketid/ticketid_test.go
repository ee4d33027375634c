package ticketid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := New()
		require.Regexp(t, `^TKT-[A-Z0-9]{10}$`, id)
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s after %d draws", id, i)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("TKT-ABC123XYZ9"))
	assert.False(t, Valid("TKT-abc123xyz9"))
	assert.False(t, Valid("TKT-ABC123"))
	assert.False(t, Valid("TCK-ABC123XYZ9"))
	assert.False(t, Valid("TKT-ABC123XYZ9Z"))
	assert.False(t, Valid(""))
}
