package speech

import (
	"fmt"
	"net/http"

	"github.com/BaSui01/voiceflow/types"
)

// transportError 将请求层错误转换为 types.Error，超时单独标记
func transportError(code types.ErrorCode, provider string, err error) error {
	if types.IsTimeout(err) {
		return types.NewError(types.ErrProviderTimeout, provider+" request timed out").
			WithProvider(provider).
			WithRetryable(true).
			WithCause(err)
	}
	return types.NewError(code, provider+" request failed").
		WithProvider(provider).
		WithRetryable(true).
		WithCause(err)
}

// statusError 将上游非 2xx 响应转换为 types.Error
func statusError(code types.ErrorCode, provider string, status int, body []byte) error {
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		code = types.ErrProviderTimeout
	}
	return types.NewError(code, fmt.Sprintf("%s error: status=%d body=%s", provider, status, truncate(body, 512))).
		WithProvider(provider).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
