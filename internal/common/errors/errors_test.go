package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("sync run: %w", NewPlatformError("google", stderrors.New("503 Service Unavailable")))

	assert.True(t, stderrors.Is(err, ErrPlatform))
	assert.False(t, stderrors.Is(err, ErrIntegrationUnavailable))
	assert.True(t, IsTransient(err))

	var stdErr *StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, "google", stdErr.Metadata["platform"])
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDatabaseError("insert review", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "insert review")
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	plain := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, plain.Code)
	assert.False(t, plain.Retryable)

	wrapped := Normalize(fmt.Errorf("ctx: %w", NewTimeoutError("genai", nil)))
	assert.Equal(t, ErrCodeTimeout, wrapped.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewUnauthorizedError("missing token"), http.StatusUnauthorized},
		{NewMethodNotAllowedError("PUT"), http.StatusMethodNotAllowed},
		{NewValidationError("bad body"), http.StatusBadRequest},
		{NewNotFoundError("review", "r-1"), http.StatusNotFound},
		{NewConflictError("reply already sent"), http.StatusConflict},
		{NewIntegrationUnavailableError("google", "disconnected"), http.StatusFailedDependency},
		{NewPlatformError("google", nil), http.StatusBadGateway},
		{NewTimeoutError("google", nil), http.StatusGatewayTimeout},
		{stderrors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestConvertToBPMNError(t *testing.T) {
	retryable := ConvertToBPMNError(NewPlatformError("google", nil))
	assert.Equal(t, "PLATFORM_ERROR", retryable.Code)
	assert.Equal(t, 3, retryable.Retries)
	assert.Equal(t, "PLATFORM_ERROR", retryable.ToErrorVariables()["errorCode"])

	fatal := ConvertToBPMNError(NewIntegrationUnavailableError("google", "expired"))
	assert.Equal(t, 0, fatal.Retries)
	assert.False(t, fatal.Retryable)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "GATEWAY", GetErrorCategory(ErrCodeUnauthorized))
	assert.Equal(t, "INTEGRATION", GetErrorCategory(ErrCodePlatformError))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeConflict))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeNotificationDeliveryFailed))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeReplyGenerationFailed))
	assert.Equal(t, "WORKFLOW", GetErrorCategory(ErrCodeWorkflowEngine))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
