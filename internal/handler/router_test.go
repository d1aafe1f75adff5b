package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	"github.com/zhouzirui/voiceturn/backend/internal/service/extraction"
	"github.com/zhouzirui/voiceturn/backend/internal/service/provider"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
	voicesvc "github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	collector := metrics.NewCollector("voiceturn", zap.NewNop())
	store := sessionservice.NewStore()
	collector.RegisterSessionGauge("voiceturn", func() float64 { return float64(store.Len()) })
	orch := voicesvc.NewOrchestrator(store, nil, extraction.NewHeuristic(), nil)
	return NewRouter(Dependencies{
		Sessions:     store,
		Orchestrator: orch,
		Providers:    provider.Names{STT: "whisper", LLM: "heuristic", TTS: "elevenlabs"},
		Metrics:      collector,
	})
}

func TestRouterServesBannerHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voiceturn")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active_sessions":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voiceturn_sessions_active 1")
	assert.Contains(t, rec.Body.String(), `voiceturn_sessions_created_total{result="ok"} 1`)
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
