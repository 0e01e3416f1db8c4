package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_CopiesDoNotMutateSentinel(t *testing.T) {
	err := ErrNotFound.WithDetail("user_id", 7)

	assert.Empty(t, ErrNotFound.Details)
	assert.Equal(t, 7, err.Details["user_id"])
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.False(t, stderrors.Is(err, ErrConflict))
}

func TestToErrorResponse(t *testing.T) {
	t.Run("application error", func(t *testing.T) {
		resp := ToErrorResponse(ErrValidation.WithMessage("ids must be integers").WithDetail("field", "ids"))
		assert.Equal(t, "ids must be integers", resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.ErrorCode)
		assert.Equal(t, map[string]interface{}{"field": "ids"}, resp.Details)
	})

	t.Run("plain error", func(t *testing.T) {
		resp := ToErrorResponse(stderrors.New("boom"))
		assert.Equal(t, "INTERNAL_ERROR", resp.ErrorCode)
		assert.Nil(t, resp.Details)
	})
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, ToHTTPStatus(ErrTimeout.WithCause(stderrors.New("deadline"))))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(stderrors.New("boom")))
}

func TestRetryability(t *testing.T) {
	assert.False(t, ErrValidation.IsRetryable())
	assert.True(t, ErrServiceUnavailable.IsRetryable())
	assert.True(t, ErrValidation.AsRetryable().IsRetryable())
	assert.True(t, ErrInternal.AsFatal().IsFatal())
}

func TestGuard(t *testing.T) {
	err := Guard(func() error {
		panic("handler exploded")
	})
	require.Error(t, err)

	var appErr *Error
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, true, appErr.Details["panic"])
	assert.True(t, appErr.IsFatal())

	assert.NoError(t, Guard(func() error { return nil }))
}
