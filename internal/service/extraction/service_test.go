package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

type fakeChain struct {
	content string
	err     error
	input   map[string]any
}

func (f *fakeChain) Invoke(_ context.Context, input map[string]any, _ ...compose.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.content, nil), nil
}

func TestExtractParsesModelJSON(t *testing.T) {
	chain := &fakeChain{content: "```json\n" + `{
		"entities": [{"name": "Paris", "type": "Place", "confidence": 1.4}, {"name": "Acme", "type": "Company", "confidence": 0.7}],
		"relationships": [{"subject": "user", "relation": "is_traveling_to", "object": "Paris"}],
		"sentiment": "excited",
		"intent": "BOOKING",
		"missing_info": ["date", " "],
		"response_audio_text": "Paris sounds lovely.",
		"trigger_clarification": true,
		"clarification_question": "When would you like to leave?"
	}` + "\n```"}
	svc := newService(chain, nil)

	res, err := svc.Extract(context.Background(), "I want to fly to Paris", nil)
	require.NoError(t, err)

	require.Len(t, res.Entities, 2)
	assert.Equal(t, model.Entity{Name: "Paris", Type: model.EntityPlace, Confidence: 1}, res.Entities[0])
	assert.Equal(t, model.EntityOther, res.Entities[1].Type)
	assert.Len(t, res.Relationships, 1)
	assert.Equal(t, "Excited", res.Sentiment)
	assert.Equal(t, "booking", res.Intent)
	assert.Equal(t, []string{"date"}, res.MissingInfo)
	assert.True(t, res.Clarify)
	assert.Equal(t, "When would you like to leave?", res.SpokenText())
}

func TestExtractFallsBackOnUnknownLabels(t *testing.T) {
	chain := &fakeChain{content: `{"sentiment": "grumpy", "intent": "shopping", "response_audio_text": "ok"}`}
	svc := newService(chain, nil)

	res, err := svc.Extract(context.Background(), "This is ridiculous, it is still broken!", nil)
	require.NoError(t, err)
	assert.Equal(t, "Frustrated", res.Sentiment)
	assert.Equal(t, "complaint", res.Intent)
	assert.Empty(t, res.Entities)
	assert.NotNil(t, res.Entities)
}

func TestExtractPassesFormattedHistory(t *testing.T) {
	chain := &fakeChain{content: `{"sentiment": "Neutral", "intent": "other", "response_audio_text": "ok"}`}
	svc := newService(chain, nil)

	history := []model.Turn{
		{Role: model.RoleUser, Text: "hello"},
		{Role: model.RoleAssistant, Text: "hi, how can I help?"},
	}
	_, err := svc.Extract(context.Background(), "  book a table  ", history)
	require.NoError(t, err)

	assert.Equal(t, "USER: hello\nASSISTANT: hi, how can I help?", chain.input["history"])
	assert.Equal(t, "book a table", chain.input["transcript"])
}

func TestExtractEmptyHistoryPlaceholder(t *testing.T) {
	assert.Equal(t, emptyHistory, formatHistory(nil))
	assert.Equal(t, emptyHistory, formatHistory([]model.Turn{{Role: model.RoleUser, Text: "  "}}))
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name  string
		chain *fakeChain
		want  error
	}{
		{name: "invoke failure", chain: &fakeChain{err: errors.New("quota")}},
		{name: "empty output", chain: &fakeChain{content: "  "}, want: ErrEmptyOutput},
		{name: "no json", chain: &fakeChain{content: "I cannot help"}, want: ErrMalformedOutput},
		{name: "broken json", chain: &fakeChain{content: `{"entities": [}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newService(tt.chain, nil).Extract(context.Background(), "hi", nil)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestPromptsAvoidTemplateBraces(t *testing.T) {
	// FString 模板会把花括号当作变量
	assert.False(t, strings.ContainsAny(systemPrompt, "{}"))
	assert.Equal(t, 2, strings.Count(userPrompt, "{"))
}

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := NewService(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate("我想订一张去上海的机票", 4)
	assert.Equal(t, "我想订一...", got)
	assert.True(t, utf8.ValidString(got))

	mixed := truncate("ok好的", 3)
	assert.Equal(t, "ok好...", mixed)
	assert.True(t, utf8.ValidString(mixed))
}
