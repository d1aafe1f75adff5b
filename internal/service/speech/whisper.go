package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	DefaultWhisperBaseURL = "https://api.groq.com/openai/v1"
	DefaultWhisperModel   = "whisper-large-v3-turbo"

	defaultHTTPTimeout = 60 * time.Second
)

// Whisper 通过 OpenAI 兼容的 /audio/transcriptions 接口转写。
// 接口不支持流式上传，所以先收齐整段音频再请求，只回调一次 onFinal。
type Whisper struct {
	cfg    speechmodel.WhisperConfig
	client *http.Client
	logger *zap.Logger
}

// NewWhisper 创建转写客户端
func NewWhisper(cfg speechmodel.WhisperConfig, logger *zap.Logger) *Whisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWhisperBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Whisper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("provider", "whisper")),
	}
}

// Transcribe 实现 voice.Transcriber。
func (w *Whisper) Transcribe(ctx context.Context, audio voice.AudioSource, _, onFinal func(text string)) (string, error) {
	if strings.TrimSpace(w.cfg.APIKey) == "" {
		return "", ErrMissingCredentials
	}

	var pcm bytes.Buffer
	for {
		chunk, err := audio.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		pcm.Write(chunk)
	}
	// 没有音频就没有语音，不必请求
	if pcm.Len() == 0 {
		return "", nil
	}

	body, contentType, err := w.form(wrapPCMAsWAV(pcm.Bytes(), w.cfg.SampleRate))
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Provider: "whisper", Code: resp.StatusCode, Message: errorMessage(raw)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("parse transcription response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	w.logger.Debug("transcription finished",
		zap.Int("audio_bytes", pcm.Len()),
		zap.Duration("elapsed", time.Since(start)))
	if text != "" && onFinal != nil {
		onFinal(text)
	}
	return text, nil
}

func (w *Whisper) form(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}
	fields := [][2]string{{"model", w.cfg.Model}, {"response_format", "json"}}
	if w.cfg.Language != "" {
		fields = append(fields, [2]string{"language", w.cfg.Language})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// errorMessage 取 OpenAI 风格错误体里的 message，取不到就用原文
func errorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Detail != nil {
			return fmt.Sprint(body.Detail)
		}
	}
	return strings.TrimSpace(string(raw))
}
