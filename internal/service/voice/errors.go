package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol 无法解析的控制帧
	ErrProtocol = errors.New("malformed control message")
	// ErrTransport 客户端连接断开或写入失败
	ErrTransport = errors.New("transport failure")
)

// 需要调用外部 provider 的轮次阶段
const (
	StageTranscription = "transcription"
	StageExtraction    = "extraction"
	StageSynthesis     = "synthesis"
)

// ProviderError 包装外部端口返回的错误
type ProviderError struct {
	Stage string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider failed: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
