package speech

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyAudio 合成结束但没有收到任何音频
var ErrEmptyAudio = errors.New("speech provider returned no audio")

// APIError 服务端明确拒绝的请求（HTTP 非 2xx 或协议内错误码）。
type APIError struct {
	Provider string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.Code, e.Message)
}

// isResourceMismatch 火山引擎在音色与资源不匹配时返回的错误
func isResourceMismatch(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "resource id is mismatched with speaker related resource")
}
