package identity_test

import (
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	t.Run("hashes and verifies a password", func(t *testing.T) {
		hash, err := identity.HashPassword("secret123")
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
		assert.NotEqual(t, "secret123", hash)

		assert.NoError(t, identity.ComparePasswordAndHash("secret123", hash))
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := identity.HashPassword("")
		assert.ErrorIs(t, err, identity.ErrNoEmptyString)
	})
}

func TestComparePasswordAndHash(t *testing.T) {
	hash, err := identity.HashPassword("correct_password")
	require.NoError(t, err)

	t.Run("wrong password fails", func(t *testing.T) {
		err := identity.ComparePasswordAndHash("wrong_password", hash)
		assert.ErrorIs(t, err, identity.ErrMismatchedHashAndPassword)
	})

	t.Run("garbage hash fails", func(t *testing.T) {
		err := identity.ComparePasswordAndHash("correct_password", "not-a-bcrypt-hash")
		assert.Error(t, err)
	})
}

func TestRandomPasswordHash(t *testing.T) {
	hash := identity.RandomPasswordHash()
	assert.NotEmpty(t, hash)

	// nothing a caller could type should ever match it
	assert.Error(t, identity.ComparePasswordAndHash("", hash))
	assert.Error(t, identity.ComparePasswordAndHash("password", hash))
}
