package extraction

import (
	"context"
	"strings"
	"unicode"

	"github.com/zhouzirui/voiceturn/backend/internal/analysis/sentiment"
	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

// Heuristic 未配置大模型时使用的关键词抽取器
type Heuristic struct{}

// NewHeuristic 创建离线抽取器
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

var placePrepositions = map[string]bool{"to": true, "in": true, "from": true, "at": true}

// Extract 实现 voice.Extractor
func (h *Heuristic) Extract(_ context.Context, transcript string, history []model.Turn) (voice.ExtractionResult, error) {
	decision := sentiment.Analyze(transcript)
	entities := guessPlaces(transcript)

	res := voice.ExtractionResult{
		Entities:      entities,
		Relationships: []model.Relationship{},
		Sentiment:     string(decision.Sentiment),
		Intent:        string(decision.Intent),
		MissingInfo:   []string{},
	}

	switch decision.Intent {
	case sentiment.Booking:
		if len(entities) == 0 {
			res.MissingInfo = append(res.MissingInfo, "destination")
			res.Clarify = true
			res.ClarificationQuestion = "Where would you like to go?"
		}
		for _, e := range entities {
			res.Relationships = append(res.Relationships, model.Relationship{Subject: "user", Relation: "wants_to_book", Object: e.Name})
		}
		res.ResponseText = "Sure, I can help you with that booking."
	case sentiment.Complaint:
		res.ResponseText = "I'm sorry about that. Let me see what I can do to help."
	case sentiment.Inquiry:
		res.ResponseText = "Good question. Let me look into that for you."
	case sentiment.Greeting:
		if len(history) > 0 {
			res.ResponseText = "Hello again! What else can I do for you?"
		} else {
			res.ResponseText = "Hello! How can I help you today?"
		}
	default:
		res.ResponseText = "Got it. Tell me more."
	}

	if decision.Sentiment == sentiment.Frustrated {
		res.ResponseText = "I understand this is frustrating. " + res.ResponseText
	}
	return res, nil
}

// guessPlaces 取地点介词后首字母大写的单词
func guessPlaces(transcript string) []model.Entity {
	fields := strings.FieldsFunc(transcript, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '.' || r == '?' || r == '!'
	})

	entities := []model.Entity{}
	seen := map[string]bool{}
	for i := 1; i < len(fields); i++ {
		word := fields[i]
		if !placePrepositions[strings.ToLower(fields[i-1])] {
			continue
		}
		first := []rune(word)[0]
		if !unicode.IsUpper(first) || seen[word] {
			continue
		}
		seen[word] = true
		entities = append(entities, model.Entity{Name: word, Type: model.EntityPlace, Confidence: 0.5})
	}
	return entities
}
