package voice

import (
	"context"
	"errors"
	"io"
	"sync"
)

var ErrBufferSealed = errors.New("audio buffer sealed")

// AudioBuffer 一段语音的无界单生产者单消费者音频队列。
// Seal 标记语音结束，消费者取完全部数据后 Recv 返回 io.EOF。
// 已消费的数据会被丢弃，序列不能重放。
type AudioBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	sealed bool
	notify chan struct{}
}

// NewAudioBuffer 创建空的可写缓冲
func NewAudioBuffer() *AudioBuffer {
	return &AudioBuffer{notify: make(chan struct{}, 1)}
}

// Push 追加一个音频块，缓冲接管该切片
func (b *AudioBuffer) Push(chunk []byte) error {
	b.mu.Lock()
	if b.sealed {
		b.mu.Unlock()
		return ErrBufferSealed
	}
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()

	b.wake()
	return nil
}

// Seal 写入语音结束标记，重复调用无效果
func (b *AudioBuffer) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()

	b.wake()
}

// Recv 实现 AudioSource
func (b *AudioBuffer) Recv(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if len(b.chunks) > 0 {
			chunk := b.chunks[0]
			b.chunks[0] = nil
			b.chunks = b.chunks[1:]
			b.mu.Unlock()
			return chunk, nil
		}
		if b.sealed {
			b.mu.Unlock()
			return nil, io.EOF
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len 返回尚未消费的块数
func (b *AudioBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

func (b *AudioBuffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
