package extraction

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/zhouzirui/voiceturn/backend/internal/analysis/sentiment"
	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

var ErrMalformedOutput = errors.New("model output is not a json object")

type payload struct {
	Entities []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	Relationships []model.Relationship `json:"relationships"`
	Sentiment     string               `json:"sentiment"`
	Intent        string               `json:"intent"`
	MissingInfo   []string             `json:"missing_info"`
	ResponseText  string               `json:"response_audio_text"`
	Clarify       bool                 `json:"trigger_clarification"`
	Question      *string              `json:"clarification_question"`
}

// parseOutput 解析大模型返回的 JSON，容忍代码块等前后缀。
func parseOutput(content string) (*payload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, ErrMalformedOutput
	}

	out := &payload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
		return nil, err
	}
	return out, nil
}

// toResult 归一标签与取值范围，transcript 用于情绪兜底
func (p *payload) toResult(transcript string) voice.ExtractionResult {
	res := voice.ExtractionResult{
		Entities:      make([]model.Entity, 0, len(p.Entities)),
		Relationships: make([]model.Relationship, 0, len(p.Relationships)),
		MissingInfo:   make([]string, 0, len(p.MissingInfo)),
		ResponseText:  strings.TrimSpace(p.ResponseText),
		Clarify:       p.Clarify,
	}

	for _, e := range p.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		res.Entities = append(res.Entities, model.Entity{
			Name:       name,
			Type:       model.NormalizeEntityType(strings.TrimSpace(e.Type)),
			Confidence: clamp01(e.Confidence),
		})
	}
	for _, r := range p.Relationships {
		if r.Subject == "" && r.Object == "" {
			continue
		}
		res.Relationships = append(res.Relationships, r)
	}
	for _, m := range p.MissingInfo {
		if m = strings.TrimSpace(m); m != "" {
			res.MissingInfo = append(res.MissingInfo, m)
		}
	}
	if p.Question != nil {
		res.ClarificationQuestion = strings.TrimSpace(*p.Question)
	}

	heuristic := sentiment.Analyze(transcript)
	if label, ok := sentiment.ParseLabel(p.Sentiment); ok {
		res.Sentiment = string(label)
	} else {
		res.Sentiment = string(heuristic.Sentiment)
	}
	if intent, ok := sentiment.ParseIntent(p.Intent); ok {
		res.Intent = string(intent)
	} else {
		res.Intent = string(heuristic.Intent)
	}
	return res
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
