package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "eseva/pkg/domain-errors"
)

func TestLoginSessionExpiry(t *testing.T) {
	generated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &LoginSession{GeneratedAt: generated, ExpiresAt: generated.Add(5 * time.Minute)}

	assert.False(t, s.IsExpired(generated.Add(4*time.Minute+59*time.Second)))
	assert.True(t, s.IsExpired(generated.Add(5*time.Minute)), "expiry boundary is exclusive")
	assert.True(t, s.IsExpired(generated.Add(time.Hour)))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)
	assert.True(t, r.IsStaff())
	assert.False(t, RoleUser.IsStaff())

	_, err = ParseRole("root")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestRequestValidation(t *testing.T) {
	t.Run("send otp normalizes and validates mobile", func(t *testing.T) {
		req := &SendOTPRequest{Mobile: " 98765-43210 "}
		require.NoError(t, req.Validate())
		assert.Equal(t, "9876543210", req.Mobile)

		err := (&SendOTPRequest{}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		err = (&SendOTPRequest{Mobile: "12ab"}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("verify otp requires six digits", func(t *testing.T) {
		err := (&VerifyOTPRequest{Mobile: "9876543210", OTP: "12345"}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidOTP))

		err = (&VerifyOTPRequest{Mobile: "9876543210"}).Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		require.NoError(t, (&VerifyOTPRequest{Mobile: "9876543210", OTP: "123456"}).Validate())
	})
}
