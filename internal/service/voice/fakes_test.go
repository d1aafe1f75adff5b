package voice_test

import (
	"context"
	"errors"
	"io"
	"sync"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

type recordingSink struct {
	mu     sync.Mutex
	events []voice.Event
	onSend func(voice.Event)
}

func (s *recordingSink) Send(ev voice.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	hook := s.onSend
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

func (s *recordingSink) Events() []voice.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]voice.Event(nil), s.events...)
}

func (s *recordingSink) Types() []string {
	var out []string
	for _, ev := range s.Events() {
		out = append(out, ev.EventType())
	}
	return out
}

func (s *recordingSink) Count(eventType string) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

func (s *recordingSink) AudioChunks() []voice.AudioChunkEvent {
	var out []voice.AudioChunkEvent
	for _, ev := range s.Events() {
		if chunk, ok := ev.(voice.AudioChunkEvent); ok {
			out = append(out, chunk)
		}
	}
	return out
}

// fakeTranscriber 读完音频，每块回报一次 partial，最后返回 transcript
type fakeTranscriber struct {
	transcript string
	finals     []string
	err        error

	mu       sync.Mutex
	received [][]byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio voice.AudioSource, onPartial, onFinal func(string)) (string, error) {
	for {
		chunk, err := audio.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.received = append(f.received, chunk)
		f.mu.Unlock()
		onPartial(string(chunk))
	}
	if f.err != nil {
		return "", f.err
	}
	for _, text := range f.finals {
		onFinal(text)
	}
	return f.transcript, nil
}

func (f *fakeTranscriber) Received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

type fakeExtractor struct {
	result voice.ExtractionResult
	err    error

	mu          sync.Mutex
	calls       int
	transcripts []string
	history     []model.Turn
}

func (f *fakeExtractor) Extract(_ context.Context, transcript string, history []model.Turn) (voice.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.transcripts = append(f.transcripts, transcript)
	f.history = history
	f.mu.Unlock()
	if f.err != nil {
		return voice.ExtractionResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSynthesizer 按 chunks 逐块返回，也可由测试直接提供 stream
type fakeSynthesizer struct {
	chunks [][]byte
	err    error
	stream voice.AudioStream

	mu    sync.Mutex
	texts []string
	last  *voice.ChunkStream
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) (voice.AudioStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.stream != nil {
		return f.stream, nil
	}
	f.last = voice.NewChunkStream("mp3", f.chunks...)
	return f.last, nil
}

func (f *fakeSynthesizer) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// failingStream 先返回正常数据，然后返回错误
type failingStream struct {
	chunks [][]byte
	err    error
}

func (s *failingStream) Recv() ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *failingStream) Format() string { return "mp3" }
func (s *failingStream) Close() error   { return nil }

// gatedStream 测试喂一块才吐一块
type gatedStream struct {
	chunks chan []byte
	closed chan struct{}
	once   sync.Once
}

func newGatedStream() *gatedStream {
	return &gatedStream{chunks: make(chan []byte), closed: make(chan struct{})}
}

func (s *gatedStream) Recv() ([]byte, error) {
	select {
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *gatedStream) Format() string { return "mp3" }

func (s *gatedStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func never() bool { return false }

func sealedBuffer(chunks ...string) *voice.AudioBuffer {
	buf := voice.NewAudioBuffer()
	for _, c := range chunks {
		_ = buf.Push([]byte(c))
	}
	buf.Seal()
	return buf
}
