package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches wrapped coded error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeForbidden, "forbidden"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestErrorsIsComparesCodeAndMessage(t *testing.T) {
	err := Wrap(errors.New("db down"), CodeInternal, "failed to save")
	require.ErrorIs(t, err, New(CodeInternal, "failed to save"))
	assert.NotErrorIs(t, err, New(CodeInternal, "other"))
	assert.Equal(t, "failed to save: db down", err.Error())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeMissingDocuments, "missing required documents").
		WithDetails("missingDocuments", []string{"address_proof"})
	de, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"address_proof"}, de.Details["missingDocuments"])
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:       http.StatusBadRequest,
		CodeInvalidOTP:       http.StatusBadRequest,
		CodeOTPExpired:       http.StatusBadRequest,
		CodeMissingDocuments: http.StatusBadRequest,
		CodeUnauthorized:     http.StatusUnauthorized,
		CodeForbidden:        http.StatusForbidden,
		CodeNotFound:         http.StatusNotFound,
		CodeConflict:         http.StatusConflict,
		CodeUpstream:         http.StatusInternalServerError,
		CodeInternal:         http.StatusInternalServerError,
		CodeTimeout:          http.StatusGatewayTimeout,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
