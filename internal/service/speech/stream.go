package speech

import (
	"errors"
	"io"
	"sync"
)

// HTTPChunkSize HTTP 合成结果按该大小切片下发
const HTTPChunkSize = 4096

// bodyStream 把 HTTP 响应体适配成 voice.AudioStream。
type bodyStream struct {
	body   io.ReadCloser
	format string
	buf    []byte
	once   sync.Once
}

func newBodyStream(body io.ReadCloser, format string) *bodyStream {
	return &bodyStream{body: body, format: format, buf: make([]byte, HTTPChunkSize)}
}

func (s *bodyStream) Recv() ([]byte, error) {
	n, err := io.ReadFull(s.body, s.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		return chunk, nil
	}
	if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	return nil, err
}

func (s *bodyStream) Format() string { return s.format }

func (s *bodyStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
