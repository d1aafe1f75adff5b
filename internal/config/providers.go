package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
)

// STTProvider 语音识别实现
type STTProvider string

const (
	STTVolcengine STTProvider = "volcengine"
	STTWhisper    STTProvider = "whisper"
)

// LLMProvider 抽取实现
type LLMProvider string

const (
	LLMArk       LLMProvider = "ark"
	LLMHeuristic LLMProvider = "heuristic"
)

// TTSProvider 语音合成实现
type TTSProvider string

const (
	TTSVolcengine TTSProvider = "volcengine"
	TTSElevenLabs TTSProvider = "elevenlabs"
)

// ProviderSelection 启动时选定的三个端口实现。
type ProviderSelection struct {
	STT STTProvider
	LLM LLMProvider
	TTS TTSProvider
}

var errMissingCredentials = errors.New("missing credentials")

func loadProviderSelection(ai AIConfig) ProviderSelection {
	llmDefault := LLMHeuristic
	if ai.Enabled() {
		llmDefault = LLMArk
	}
	return ProviderSelection{
		STT: STTProvider(strings.ToLower(getEnvOrDefault("STT_PROVIDER", string(STTWhisper)))),
		LLM: LLMProvider(strings.ToLower(getEnvOrDefault("LLM_PROVIDER", string(llmDefault)))),
		TTS: TTSProvider(strings.ToLower(getEnvOrDefault("TTS_PROVIDER", string(TTSElevenLabs)))),
	}
}

// Validate 检查枚举取值与所选 provider 的凭证。
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT value %q", c.Log.Format)
	}

	volcReady := c.Volcengine.AppID != "" && c.Volcengine.AccessToken != ""

	switch c.Providers.STT {
	case STTVolcengine:
		if !volcReady {
			return fmt.Errorf("STT_PROVIDER=volcengine: %w: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN", errMissingCredentials)
		}
	case STTWhisper:
		if c.Whisper.APIKey == "" {
			return fmt.Errorf("STT_PROVIDER=whisper: %w: WHISPER_API_KEY or GROQ_API_KEY", errMissingCredentials)
		}
	default:
		return fmt.Errorf("invalid STT_PROVIDER value %q", c.Providers.STT)
	}

	switch c.Providers.LLM {
	case LLMArk:
		if !c.AI.Enabled() {
			return fmt.Errorf("LLM_PROVIDER=ark: %w: ARK_MODEL plus ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY", errMissingCredentials)
		}
	case LLMHeuristic:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER value %q", c.Providers.LLM)
	}

	switch c.Providers.TTS {
	case TTSVolcengine:
		if !volcReady {
			return fmt.Errorf("TTS_PROVIDER=volcengine: %w: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN", errMissingCredentials)
		}
	case TTSElevenLabs:
		if c.ElevenLabs.APIKey == "" {
			return fmt.Errorf("TTS_PROVIDER=elevenlabs: %w: ELEVENLABS_API_KEY", errMissingCredentials)
		}
	default:
		return fmt.Errorf("invalid TTS_PROVIDER value %q", c.Providers.TTS)
	}
	return nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
	if c.Temperature != nil {
		v := float32(*c.Temperature)
		cfg.Temperature = &v
	}
	if c.TopP != nil {
		v := float32(*c.TopP)
		cfg.TopP = &v
	}
	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadVolcengineConfig() (speechmodel.VolcengineConfig, error) {
	rate, err := parsePositiveIntEnv("SPEECH_SAMPLE_RATE", 16000)
	if err != nil {
		return speechmodel.VolcengineConfig{}, err
	}
	return speechmodel.VolcengineConfig{
		AppID:         strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:   strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN")),
		SecretKey:     strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY")),
		ASRURL:        strings.TrimSpace(os.Getenv("SPEECH_ASR_URL")),
		ASRResourceID: strings.TrimSpace(os.Getenv("SPEECH_ASR_RESOURCE_ID")),
		TTSURL:        strings.TrimSpace(os.Getenv("SPEECH_TTS_URL")),
		TTSResourceID: strings.TrimSpace(os.Getenv("SPEECH_TTS_RESOURCE_ID")),
		Speaker:       strings.TrimSpace(os.Getenv("SPEECH_TTS_SPEAKER")),
		SampleRate:    rate,
	}, nil
}

func loadWhisperConfig() (speechmodel.WhisperConfig, error) {
	rate, err := parsePositiveIntEnv("WHISPER_SAMPLE_RATE", 16000)
	if err != nil {
		return speechmodel.WhisperConfig{}, err
	}
	return speechmodel.WhisperConfig{
		APIKey:     getEnvOrDefault("WHISPER_API_KEY", strings.TrimSpace(os.Getenv("GROQ_API_KEY"))),
		BaseURL:    getEnvOrDefault("WHISPER_BASE_URL", "https://api.groq.com/openai/v1"),
		Model:      getEnvOrDefault("WHISPER_MODEL", "whisper-large-v3-turbo"),
		Language:   strings.TrimSpace(os.Getenv("WHISPER_LANGUAGE")),
		SampleRate: rate,
	}, nil
}

func loadElevenLabsConfig() speechmodel.ElevenLabsConfig {
	return speechmodel.ElevenLabsConfig{
		APIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		BaseURL: getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		VoiceID: getEnvOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		Model:   getEnvOrDefault("ELEVENLABS_MODEL", "eleven_turbo_v2_5"),
	}
}
