// Package provider 在启动时一次性解析配置选定的各端口实现
package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/config"
	"github.com/zhouzirui/voiceturn/backend/internal/service/extraction"
	"github.com/zhouzirui/voiceturn/backend/internal/service/speech"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

// Names 当前生效的实现名称，由健康检查接口返回
type Names struct {
	STT string `json:"stt"`
	LLM string `json:"llm"`
	TTS string `json:"tts"`
}

// Set 一轮对话所需的三个端口
type Set struct {
	Transcriber voice.Transcriber
	Extractor   voice.Extractor
	Synthesizer voice.Synthesizer
	Names       Names
}

// Build 按 cfg 构造各 provider，cfg 应已通过 Validate
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sel := cfg.Providers
	set := &Set{Names: Names{STT: string(sel.STT), LLM: string(sel.LLM), TTS: string(sel.TTS)}}

	switch sel.STT {
	case config.STTVolcengine:
		set.Transcriber = speech.NewVolcengineASR(cfg.Volcengine, logger)
	case config.STTWhisper:
		set.Transcriber = speech.NewWhisper(cfg.Whisper, logger)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", sel.STT)
	}

	switch sel.LLM {
	case config.LLMArk:
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		svc, err := extraction.NewService(ctx, chatModel, logger)
		if err != nil {
			return nil, fmt.Errorf("create extraction service: %w", err)
		}
		set.Extractor = svc
	case config.LLMHeuristic:
		set.Extractor = extraction.NewHeuristic()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", sel.LLM)
	}

	switch sel.TTS {
	case config.TTSVolcengine:
		set.Synthesizer = speech.NewVolcengineTTS(cfg.Volcengine, logger)
	case config.TTSElevenLabs:
		set.Synthesizer = speech.NewElevenLabs(cfg.ElevenLabs, logger)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", sel.TTS)
	}

	logger.Info("providers resolved",
		zap.String("stt", set.Names.STT),
		zap.String("llm", set.Names.LLM),
		zap.String("tts", set.Names.TTS))
	return set, nil
}
