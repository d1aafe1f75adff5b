package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	session "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

var ErrEmptyOutput = errors.New("model returned empty output")

type invoker interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (*schema.Message, error)
}

// Service 使用大模型完成实体、关系、情绪与意图的抽取。
type Service struct {
	chain  invoker
	logger *zap.Logger
}

// NewService 编译 prompt + chat model 链
func NewService(ctx context.Context, chatModel model.ChatModel, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction chain: %w", err)
	}

	return newService(runnable, logger), nil
}

func newService(chain invoker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chain: chain, logger: logger.With(zap.String("component", "extraction"))}
}

// Extract 实现 voice.Extractor
func (s *Service) Extract(ctx context.Context, transcript string, history []session.Turn) (voice.ExtractionResult, error) {
	input := map[string]any{
		"history":    formatHistory(history),
		"transcript": strings.TrimSpace(transcript),
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return voice.ExtractionResult{}, fmt.Errorf("failed to run extraction chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return voice.ExtractionResult{}, ErrEmptyOutput
	}

	out, err := parseOutput(msg.Content)
	if err != nil {
		s.logger.Warn("extraction output unparsable", zap.String("content", truncate(msg.Content, 200)), zap.Error(err))
		return voice.ExtractionResult{}, fmt.Errorf("parse extraction output: %w", err)
	}

	result := out.toResult(transcript)
	s.logger.Debug("extraction parsed",
		zap.Int("entities", len(result.Entities)),
		zap.String("sentiment", result.Sentiment),
		zap.String("intent", result.Intent),
		zap.Bool("clarify", result.Clarify),
	)
	return result, nil
}

// truncate 按字符截断，避免把中文切成半个 rune
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
