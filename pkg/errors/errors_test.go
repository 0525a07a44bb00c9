package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, CodeAuth, false},
		{"forbidden", http.StatusForbidden, CodeQuota, false},
		{"rate limited", http.StatusTooManyRequests, CodeRateLimit, true},
		{"gateway timeout", http.StatusGatewayTimeout, CodeTimeout, true},
		{"internal error", http.StatusInternalServerError, CodeProvider, true},
		{"bad gateway", http.StatusBadGateway, CodeProvider, true},
		{"bad request", http.StatusBadRequest, CodeValidation, false},
		{"not found", http.StatusNotFound, CodeProvider, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus("openai", tt.status, "")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestUserMessage_StableAcrossProviders(t *testing.T) {
	a := FromStatus("openai", http.StatusTooManyRequests, "Rate limit reached for gpt-4o")
	b := FromStatus("anthropic", http.StatusTooManyRequests, "overloaded_error")
	assert.Equal(t, a.UserMessage(), b.UserMessage())
	assert.NotContains(t, a.UserMessage(), "gpt-4o")
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeRateLimit, CodeOf(NewRateLimitError("openai", "limited")))
	require.Equal(t, CodeCancelled, CodeOf(context.Canceled))
	require.Equal(t, CodeCancelled, CodeOf(fmt.Errorf("attempt: %w", context.DeadlineExceeded)))
	require.Equal(t, CodeProvider, CodeOf(fmt.Errorf("boom")))
	require.Equal(t, "", CodeOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := NewRateLimitError("openai", "limited")
	err := Wrap(CodeProvider, "all providers unavailable", cause)

	require.Equal(t, CodeProvider, err.Code)
	var inner *GatewayError
	require.ErrorAs(t, err.Err, &inner)
	assert.Equal(t, CodeRateLimit, inner.Code)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewNetworkError("openai", fmt.Errorf("dial tcp: refused"))))
	assert.False(t, IsRetryable(NewValidationError("empty message")))
	assert.False(t, IsRetryable(NewCancelledError(context.Canceled)))
	assert.True(t, IsRetryable(fmt.Errorf("plain failure")))
}
