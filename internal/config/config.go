package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Session   SessionConfig
	Providers ProviderSelection

	AI         AIConfig
	Volcengine speechmodel.VolcengineConfig
	Whisper    speechmodel.WhisperConfig
	ElevenLabs speechmodel.ElevenLabsConfig
}

// Load 从环境变量加载并校验配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	volc, err := loadVolcengineConfig()
	if err != nil {
		return nil, err
	}

	whisper, err := loadWhisperConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:     server,
		Log:        loadLogConfig(),
		Session:    session,
		AI:         ai,
		Volcengine: volc,
		Whisper:    whisper,
		ElevenLabs: loadElevenLabsConfig(),
	}
	cfg.Providers = loadProviderSelection(ai)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := getEnvOrDefault("PORT", "8000")

	if strings.Contains(port, ":") {
		// 允许直接传入 ":8000" 或 "127.0.0.1:8000"。
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 日志级别与输出格式
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}
}

// SessionConfig 会话容量、空闲过期与上下文窗口。
type SessionConfig struct {
	MaxSessions  int
	IdleTimeout  time.Duration
	HistoryLimit int
}

func loadSessionConfig() (SessionConfig, error) {
	maxSessions, err := parsePositiveIntEnv("MAX_SESSIONS", 50)
	if err != nil {
		return SessionConfig{}, err
	}
	timeout, err := parsePositiveIntEnv("SESSION_TIMEOUT_SECONDS", 300)
	if err != nil {
		return SessionConfig{}, err
	}
	history, err := parsePositiveIntEnv("HISTORY_LIMIT", 10)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{
		MaxSessions:  maxSessions,
		IdleTimeout:  time.Duration(timeout) * time.Second,
		HistoryLimit: history,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
