package voice

import (
	"context"
	"io"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

// AudioSource 一段语音的消费端。Recv 阻塞到有数据，语音结束后返回 io.EOF。
type AudioSource interface {
	Recv(ctx context.Context) ([]byte, error)
}

// Transcriber 把语音转成文本。回调须在 Transcribe 返回前调用，之后的调用会被丢弃。
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioSource, onPartial, onFinal func(text string)) (string, error)
}

// ExtractionResult 一次抽取的结构化结果
type ExtractionResult struct {
	Entities              []model.Entity
	Relationships         []model.Relationship
	Sentiment             string
	Intent                string
	MissingInfo           []string
	ResponseText          string
	Clarify               bool
	ClarificationQuestion string
}

// SpokenText 选出助手要说的话
func (r ExtractionResult) SpokenText() string {
	if r.Clarify && r.ClarificationQuestion != "" {
		return r.ClarificationQuestion
	}
	return r.ResponseText
}

// Extractor 从识别文本中抽取实体、情绪与意图，history 为最近的记录，按时间顺序
type Extractor interface {
	Extract(ctx context.Context, transcript string, history []model.Turn) (ExtractionResult, error)
}

// AudioStream 惰性的合成音频序列。读完时 Recv 返回 io.EOF，Close 丢弃未读部分。
type AudioStream interface {
	Recv() ([]byte, error)
	Format() string
	Close() error
}

// Synthesizer 把回复文本合成为音频
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioStream, error)
}

// ChunkStream 基于内存数据块的 AudioStream
type ChunkStream struct {
	chunks [][]byte
	format string
	closed bool
}

// NewChunkStream 把数据块包装成 AudioStream
func NewChunkStream(format string, chunks ...[]byte) *ChunkStream {
	return &ChunkStream{chunks: chunks, format: format}
}

func (s *ChunkStream) Recv() ([]byte, error) {
	if s.closed || len(s.chunks) == 0 {
		return nil, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *ChunkStream) Format() string { return s.format }

// Remaining 返回未被读取的块数
func (s *ChunkStream) Remaining() int { return len(s.chunks) }

func (s *ChunkStream) Close() error {
	s.closed = true
	return nil
}
