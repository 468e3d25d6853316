package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryOf(t *testing.T) {
	t.Run("classifies constructed errors", func(t *testing.T) {
		assert.Equal(t, CategoryTransient, CategoryOf(NewTransientError("etherscan", nil)))
		assert.Equal(t, CategoryInvalidAddress, CategoryOf(NewInvalidAddressError("0xabc")))
		assert.Equal(t, CategoryDuplicateAddress, CategoryOf(NewDuplicateAddressError("0xabc")))
		assert.Equal(t, CategoryNotFound, CategoryOf(NewNotFoundError("0xabc")))
		assert.Equal(t, CategoryStoreUnavailable, CategoryOf(NewStoreUnavailableError("append", nil)))
		assert.Equal(t, CategorySinkFailure, CategoryOf(NewSinkFailureError("telegram", nil)))
	})

	t.Run("classifies wrapped errors", func(t *testing.T) {
		wrapped := fmt.Errorf("check failed: %w", NewTransientError("etherscan", nil))
		assert.Equal(t, CategoryTransient, CategoryOf(wrapped))
	})

	t.Run("unknown for plain errors", func(t *testing.T) {
		assert.Equal(t, CategoryUnknown, CategoryOf(stderrors.New("boom")))
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewTransientError("etherscan", nil)))
	assert.True(t, IsTransient(NewRateLimitedError("etherscan")))
	assert.False(t, IsTransient(NewInvalidAddressError("0xabc")))
	assert.False(t, IsTransient(NewStoreUnavailableError("append", nil)))
	assert.False(t, IsTransient(nil))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewTransientError("etherscan", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestGetHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, GetHTTPStatusCode(NewDuplicateAddressError("0xabc")))
	assert.Equal(t, http.StatusNotFound, GetHTTPStatusCode(NewNotFoundError("0xabc")))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(stderrors.New("boom")))
}
