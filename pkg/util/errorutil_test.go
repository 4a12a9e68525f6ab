package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewValidationError("bad", nil), CodeValidation, http.StatusBadRequest},
		{NewUnauthenticated("none"), CodeUnauthenticated, http.StatusUnauthorized},
		{NewUnauthorized("wrong"), CodeUnauthorized, http.StatusUnauthorized},
		{NewForbidden("no"), CodeForbidden, http.StatusForbidden},
		{NewConflict("dup", nil), CodeConflict, http.StatusConflict},
		{NewNotFound("user", nil), CodeNotFound, http.StatusNotFound},
		{NewTooManyRequests("slow down"), CodeTooManyRequests, http.StatusTooManyRequests},
		{NewInternalError(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		de := ToDomainError(tc.err)
		require.NotNil(t, de)
		assert.Equal(t, tc.code, de.Code)
		assert.Equal(t, tc.status, de.HTTPStatus)
		assert.True(t, IsCode(tc.err, tc.code))
	}
}

func TestToDomainErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", NewForbidden("Forbidden"))
	de := ToDomainError(wrapped)
	assert.Equal(t, CodeForbidden, de.Code)
	assert.Equal(t, "Forbidden", de.Message)
}

func TestToDomainErrorUnclassified(t *testing.T) {
	cause := errors.New("connection refused")
	de := ToDomainError(cause)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.ErrorIs(t, de, cause)
	assert.Contains(t, de.Error(), "connection refused")
}

func TestToDomainErrorNil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}
