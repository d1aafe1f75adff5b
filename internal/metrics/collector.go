// Package metrics 为语音会话与对话轮次提供 prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// 轮次结果
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeEmpty       = "empty"
	OutcomeFailed      = "failed"
)

// 轮次阶段
const (
	PhaseTranscription = "transcription"
	PhaseExtraction    = "extraction"
	PhaseSynthesis     = "synthesis"
)

// Collector 指标收集器。nil Collector 的所有方法均为空操作。
type Collector struct {
	registry *prometheus.Registry

	sessionsCreated   *prometheus.CounterVec
	turnsTotal        *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	audioChunksSent   prometheus.Counter
	connectionsActive prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 在独立的 registry 上注册全部指标
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.sessionsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Session creation attempts by result",
		},
		[]string{"result"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Voice turns by outcome",
		},
		[]string{"outcome"},
	)

	c.phaseDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_phase_duration_seconds",
			Help:      "Duration of each turn phase",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"phase"},
	)

	c.audioChunksSent = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_chunks_sent_total",
		Help:      "Synthesized audio chunks forwarded to clients",
	})

	c.connectionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Open voice websocket connections",
	})

	return c
}

// RegisterSessionGauge 抓取时调用 fn 读取当前会话数
func (c *Collector) RegisterSessionGauge(namespace string, fn func() float64) {
	if c == nil {
		return
	}
	err := c.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently held by the store",
	}, fn))
	if err != nil {
		c.logger.Warn("register session gauge failed", zap.Error(err))
	}
}

// RecordSessionCreated 记录一次创建尝试，result 为 "ok" 或简短的失败标记
func (c *Collector) RecordSessionCreated(result string) {
	if c == nil {
		return
	}
	c.sessionsCreated.WithLabelValues(result).Inc()
}

// RecordTurn 记录一轮结束的对话
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase 记录某个阶段的耗时
func (c *Collector) ObservePhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordAudioChunk 记录一个已转发的音频块
func (c *Collector) RecordAudioChunk() {
	if c == nil {
		return
	}
	c.audioChunksSent.Inc()
}

// ConnectionOpened / ConnectionClosed 跟踪在线的 websocket 连接
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// Handler 以 prometheus 文本格式输出指标
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
