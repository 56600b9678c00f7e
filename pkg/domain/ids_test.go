package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "eseva/pkg/domain-errors"
)

// TestParseUUID_Rules checks the parsing rules:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Rules(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID with surrounding whitespace", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseApplicationID("  " + validUUID.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, ApplicationID(validUUID), id)
	})
}

func TestTypeDistinction(t *testing.T) {
	userID := NewUserID()
	appID := NewApplicationID()

	// var _ UserID = appID // compile error
	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(appID))
	assert.False(t, userID.IsNil())
	assert.True(t, UserID{}.IsNil())
}
