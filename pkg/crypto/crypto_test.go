package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("abcdef", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "abcdef", hash)
	assert.True(t, CheckPassword("abcdef", hash))
	assert.False(t, CheckPassword("abcdeg", hash))
}

func TestHashPasswordInvalidCostFallsBack(t *testing.T) {
	hash, err := HashPassword("abcdef", 99)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
