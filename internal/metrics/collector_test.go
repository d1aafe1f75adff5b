package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorRecordsTurns(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordTurn(OutcomeCompleted)
	c.RecordTurn(OutcomeCompleted)
	c.RecordTurn(OutcomeInterrupted)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues(OutcomeInterrupted)))
}

func TestCollectorConnectionsGauge(t *testing.T) {
	c := NewCollector("test", nil)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
}

func TestCollectorHandlerExposesSessionGauge(t *testing.T) {
	c := NewCollector("voiceturn", zap.NewNop())
	c.RegisterSessionGauge("voiceturn", func() float64 { return 3 })
	c.ObservePhase(PhaseSynthesis, 120*time.Millisecond)
	c.RecordAudioChunk()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "voiceturn_sessions_active 3"), body)
	assert.True(t, strings.Contains(body, "voiceturn_audio_chunks_sent_total 1"), body)
	assert.True(t, strings.Contains(body, `voiceturn_turn_phase_duration_seconds_count{phase="synthesis"} 1`), body)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordTurn(OutcomeFailed)
	c.RecordSessionCreated("ok")
	c.ObservePhase(PhaseExtraction, time.Second)
	c.RecordAudioChunk()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.RegisterSessionGauge("x", func() float64 { return 0 })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
