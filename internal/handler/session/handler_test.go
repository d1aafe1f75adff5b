package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/provider"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
)

func newTestRouter(t *testing.T, maxSessions int) (http.Handler, *sessionservice.Store) {
	t.Helper()
	store := sessionservice.NewStore(sessionservice.WithMaxSessions(maxSessions))
	h := New(store, provider.Names{STT: "whisper", LLM: "heuristic", TTS: "elevenlabs"}, nil, nil)
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r, store
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, 5)

	rec := do(t, router, http.MethodPost, "/api/sessions")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	rec = do(t, router, http.MethodGet, "/api/sessions/"+created.SessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, created.SessionID, detail.ID)
	assert.Equal(t, model.DefaultSentiment, detail.Extraction.Sentiment)
	assert.Equal(t, model.DefaultIntent, detail.Extraction.Intent)

	rec = do(t, router, http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []model.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, created.SessionID, summaries[0].ID)

	rec = do(t, router, http.MethodDelete, "/api/sessions/"+created.SessionID)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/sessions/"+created.SessionID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/sessions/"+created.SessionID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAtCapacity(t *testing.T) {
	router, _ := newTestRouter(t, 1)

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/sessions").Code)
	rec := do(t, router, http.MethodPost, "/api/sessions")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestHealth(t *testing.T) {
	router, store := newTestRouter(t, 5)
	_, err := store.Create(context.Background())
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "ok",
		"providers": {"stt": "whisper", "llm": "heuristic", "tts": "elevenlabs"},
		"active_sessions": 1
	}`, rec.Body.String())
}
