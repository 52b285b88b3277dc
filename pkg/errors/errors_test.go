package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindPredicatesSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("loading job: %w", NewNotFound("notification", nil))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
}

func TestIsMatchesByKind(t *testing.T) {
	err := NewInvalidState("job is not pending", nil)
	assert.True(t, stderrors.Is(err, NewInvalidState("any message", nil)))
	assert.False(t, stderrors.Is(err, NewNotFound("any", nil)))
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := stderrors.New("row scan failed")
	err := NewInternal(cause)
	assert.Contains(t, err.Error(), "row scan failed")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewProvider("gateway unavailable", nil)))
	assert.True(t, Retryable(NewTimeout("send deadline exceeded", nil)))
	assert.False(t, Retryable(NewValidation("bad request", nil)))
	assert.False(t, Retryable(stderrors.New("plain")))
	assert.False(t, Retryable(nil))
}
