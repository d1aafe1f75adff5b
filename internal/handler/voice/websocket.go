package voice

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
	voicesvc "github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 54 * time.Second
	controlWriteWait    = 5 * time.Second
)

// Handler WebSocket语音处理器，每个连接交给一个 voice.Connection。
type Handler struct {
	store    voicesvc.ConnectionStore
	runner   voicesvc.TurnRunner
	metrics  *metrics.Collector
	logger   *zap.Logger
	upgrader websocket.Upgrader

	readTimeout  time.Duration
	pingInterval time.Duration
}

// Option 调整处理器参数
type Option func(*Handler)

// WithKeepalive 覆盖读超时与 ping 间隔，ping 间隔应小于读超时。
func WithKeepalive(readTimeout, pingInterval time.Duration) Option {
	return func(h *Handler) {
		if readTimeout > 0 {
			h.readTimeout = readTimeout
		}
		if pingInterval > 0 {
			h.pingInterval = pingInterval
		}
	}
}

// New 创建WebSocket处理器
func New(store voicesvc.ConnectionStore, runner voicesvc.TurnRunner, m *metrics.Collector, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:   store,
		runner:  runner,
		metrics: m,
		logger:  logger.With(zap.String("component", "voice_ws")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/voice/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// 读循环阻塞在 ReadMessage 上，服务关闭时靠关闭连接唤醒
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go h.pingLoop(ctx, conn)

	c := voicesvc.NewConnection(
		&keepaliveConn{Conn: conn, readTimeout: h.readTimeout},
		h.store,
		h.runner,
		voicesvc.WithConnectionMetrics(h.metrics),
		voicesvc.WithConnectionLogger(h.logger),
	)

	err = c.Serve(ctx, requested)
	switch {
	case errors.Is(err, sessionservice.ErrCapacityExceeded):
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "session capacity reached")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
	case unexpectedClose(err):
		h.logger.Info("voice connection dropped", zap.String("session_id", c.SessionID()), zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				return
			}
		}
	}
}

// unexpectedClose 过滤掉客户端正常关闭
func unexpectedClose(err error) bool {
	if err == nil {
		return false
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return false
		}
	}
	return true
}

// keepaliveConn 每收到一帧就顺延读超时
type keepaliveConn struct {
	*websocket.Conn
	readTimeout time.Duration
}

func (k *keepaliveConn) ReadMessage() (int, []byte, error) {
	mt, data, err := k.Conn.ReadMessage()
	if err == nil {
		_ = k.Conn.SetReadDeadline(time.Now().Add(k.readTimeout))
	}
	return mt, data, err
}
