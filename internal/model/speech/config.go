package speech

import "time"

// VolcengineConfig 火山引擎语音连接配置
type VolcengineConfig struct {
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`
	SecretKey   string `json:"secretKey,omitempty"`

	ASRURL        string `json:"asrUrl"`
	ASRResourceID string `json:"asrResourceId"`
	Language      string `json:"language,omitempty"`
	SampleRate    int    `json:"sampleRate"` // 上行 PCM 采样率

	TTSURL        string `json:"ttsUrl"`
	TTSResourceID string `json:"ttsResourceId,omitempty"` // 为空时按音色推断
	Speaker       string `json:"speaker"`

	HandshakeTimeout time.Duration `json:"handshakeTimeout"`
}

// WhisperConfig OpenAI 兼容的转写接口（Groq / OpenAI）
type WhisperConfig struct {
	APIKey     string        `json:"-"`
	BaseURL    string        `json:"baseUrl"`
	Model      string        `json:"model"`
	Language   string        `json:"language,omitempty"`
	SampleRate int           `json:"sampleRate"`
	Timeout    time.Duration `json:"timeout"`
}

// ElevenLabsConfig ElevenLabs 流式合成配置
type ElevenLabsConfig struct {
	APIKey  string        `json:"-"`
	BaseURL string        `json:"baseUrl"`
	VoiceID string        `json:"voiceId"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}
