package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

func TestHeuristicBookingWithoutDestinationAsksForIt(t *testing.T) {
	res, err := NewHeuristic().Extract(context.Background(), "book a flight", nil)
	require.NoError(t, err)

	assert.Equal(t, "booking", res.Intent)
	assert.True(t, res.Clarify)
	assert.Equal(t, []string{"destination"}, res.MissingInfo)
	assert.Equal(t, "Where would you like to go?", res.SpokenText())
}

func TestHeuristicBookingWithDestination(t *testing.T) {
	res, err := NewHeuristic().Extract(context.Background(), "Book me a flight to London please", nil)
	require.NoError(t, err)

	require.Len(t, res.Entities, 1)
	assert.Equal(t, model.Entity{Name: "London", Type: model.EntityPlace, Confidence: 0.5}, res.Entities[0])
	assert.False(t, res.Clarify)
	assert.Equal(t, []model.Relationship{{Subject: "user", Relation: "wants_to_book", Object: "London"}}, res.Relationships)
}

func TestHeuristicGreetingUsesHistory(t *testing.T) {
	first, err := NewHeuristic().Extract(context.Background(), "hello", nil)
	require.NoError(t, err)
	again, err := NewHeuristic().Extract(context.Background(), "hello", []model.Turn{{Role: model.RoleUser, Text: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "greeting", first.Intent)
	assert.NotEqual(t, first.ResponseText, again.ResponseText)
}

func TestHeuristicFrustrationIsAcknowledged(t *testing.T) {
	res, err := NewHeuristic().Extract(context.Background(), "I am fed up, the refund is still not working", nil)
	require.NoError(t, err)

	assert.Equal(t, "Frustrated", res.Sentiment)
	assert.Contains(t, res.ResponseText, "frustrating")
}
