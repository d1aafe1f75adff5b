package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	DefaultElevenLabsVoice   = "21m00Tcm4TlvDq8ikWAM"
	DefaultElevenLabsModel   = "eleven_turbo_v2_5"

	elevenLabsOutput = "mp3_44100_128"
)

// ElevenLabs 调用 /text-to-speech/{voice}/stream，响应体边到边转发。
type ElevenLabs struct {
	cfg    speechmodel.ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

// NewElevenLabs 创建合成客户端。不设整体超时，流的生命周期由 ctx 控制。
func NewElevenLabs(cfg speechmodel.ElevenLabsConfig, logger *zap.Logger) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultElevenLabsVoice
	}
	if cfg.Model == "" {
		cfg.Model = DefaultElevenLabsModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("provider", "elevenlabs")),
	}
}

// Synthesize 实现 voice.Synthesizer。
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (voice.AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts text is empty")
	}
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, ErrMissingCredentials
	}

	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s",
		e.cfg.BaseURL, url.PathEscape(e.cfg.VoiceID), elevenLabsOutput)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &APIError{Provider: "elevenlabs", Code: resp.StatusCode, Message: errorMessage(raw)}
	}

	e.logger.Debug("synthesis stream opened", zap.String("voice", e.cfg.VoiceID), zap.Int("chars", len(text)))
	return newBodyStream(resp.Body, "mp3"), nil
}
