package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrSTT, "transcription failed").
		WithCause(root).
		WithRetryable(true).
		WithProvider("openai-stt").
		WithDetail("locale", "es-CO")

	assert.Equal(t, ErrSTT, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "es-CO", err.Details["locale"])
	assert.Contains(t, err.Error(), "stt_error")
}

func TestError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	sentinel := NewError(ErrAccessDenied, "access denied")
	wrapped := fmt.Errorf("list sessions: %w", NewError(ErrAccessDenied, "tenant mismatch"))

	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, wrapped, NewError(ErrStorage, "x"))
	assert.Equal(t, ErrAccessDenied, GetErrorCode(wrapped))
}

func TestHTTPStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrBadRequest:           http.StatusBadRequest,
		ErrUnsupportedMediaType: http.StatusUnsupportedMediaType,
		ErrUnauthorized:         http.StatusUnauthorized,
		ErrTierInvalid:          http.StatusBadRequest,
		ErrTierForbidden:        http.StatusForbidden,
		ErrSTT:                  http.StatusBadGateway,
		ErrLLM:                  http.StatusBadGateway,
		ErrTTS:                  http.StatusBadGateway,
		ErrProviderTimeout:      http.StatusGatewayTimeout,
		ErrStorage:              http.StatusServiceUnavailable,
		ErrInternal:             http.StatusInternalServerError,
		ErrRateLimited:          http.StatusTooManyRequests,
		ErrorCode("unknown"):    http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFor(code), string(code))
	}
}

func TestError_StatusPrefersExplicit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadGateway, NewError(ErrLLM, "x").Status())
	assert.Equal(t, http.StatusTeapot, NewError(ErrLLM, "x").WithHTTPStatus(http.StatusTeapot).Status())
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

type fakeNetTimeout struct{}

func (fakeNetTimeout) Error() string   { return "i/o timeout" }
func (fakeNetTimeout) Timeout() bool   { return true }
func (fakeNetTimeout) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(NewError(ErrProviderTimeout, "slow upstream")))
	assert.True(t, IsTimeout(fmt.Errorf("dial: %w", fakeNetTimeout{})))
	assert.False(t, IsTimeout(NewError(ErrSTT, "bad audio")))
}
