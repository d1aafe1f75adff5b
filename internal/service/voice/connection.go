package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

const (
	// NewSessionID 表示客户端请求新建会话
	NewSessionID = "new"

	DefaultTurnQueueSize = 4

	readyMessage = "Connected. Send PCM audio chunks to begin."
	writeTimeout = 10 * time.Second

	noInterrupt = -1
)

// State 连接所处的生命周期阶段
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateIdle
	StateAwaitingTurn
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateIdle:
		return "streaming_idle"
	case StateAwaitingTurn:
		return "streaming_awaiting_turn"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transport 面向消息的客户端连接，*websocket.Conn 直接满足
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// ConnectionStore 负责解析或新建连接所驱动的会话
type ConnectionStore interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, id string) (model.Session, error)
}

// TurnRunner 执行一轮对话，*Orchestrator 直接满足
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID string, audio AudioSource, sink Sink, interrupted func() bool) (TurnResult, error)
}

// utterance 是读协程封存后交给工作协程的一段语音，seq 从 1 开始递增
type utterance struct {
	buf *AudioBuffer
	seq int64
}

// Connection 驱动一个客户端连接。
//
// 读协程负责拆分音频帧与控制帧，工作协程逐轮执行对话，两者只共享打断标记
// 和已封存的音频缓冲。打断以轮次编号记录：interrupt 把当前已封存的最大编号
// 写入 interruptMark，编号不大于它的轮次都视为被打断。因此 audio_end 之后
// 立刻到达的 interrupt 一定作用于刚封存的那一轮，后续轮次也不会抹掉它。
type Connection struct {
	transport Transport
	store     ConnectionStore
	runner    TurnRunner
	queueSize int
	metrics   *metrics.Collector
	logger    *zap.Logger

	writeMu sync.Mutex
	state   atomic.Int32

	sealed        atomic.Int64 // 仅读协程写入
	finished      atomic.Int64 // 仅工作协程写入
	interruptMark atomic.Int64

	sessionID string
}

// ConnectionOption 连接的可选配置
type ConnectionOption func(*Connection)

// WithTurnQueueSize 限制排在当前轮次之后的待处理语音数
func WithTurnQueueSize(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

func WithConnectionMetrics(m *metrics.Collector) ConnectionOption {
	return func(c *Connection) { c.metrics = m }
}

func WithConnectionLogger(logger *zap.Logger) ConnectionOption {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnection 创建处于 Connecting 状态的连接
func NewConnection(transport Transport, store ConnectionStore, runner TurnRunner, opts ...ConnectionOption) *Connection {
	c := &Connection{
		transport: transport,
		store:     store,
		runner:    runner,
		queueSize: DefaultTurnQueueSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "voice_connection"))
	c.state.Store(int32(StateConnecting))
	c.interruptMark.Store(noInterrupt)
	return c
}

// State 返回当前状态
func (c *Connection) State() State {
	return State(c.state.Load())
}

// SessionID 会话解析完成前为空
func (c *Connection) SessionID() string {
	return c.sessionID
}

// Interrupted 报告最近封存的语音是否已被请求打断
func (c *Connection) Interrupted() bool {
	mark := c.interruptMark.Load()
	return mark != noInterrupt && mark >= c.sealed.Load()
}

// Serve 解析会话、发送 session_ready，然后一直运行到连接断开。
// 返回时会话记录保留在存储中；容量不足会先通知客户端再返回包装后的错误。
func (c *Connection) Serve(ctx context.Context, requestedID string) error {
	defer c.setState(StateClosed)

	id, err := c.resolveSession(ctx, requestedID)
	if err != nil {
		c.send(NewError(err.Error()))
		return err
	}
	c.sessionID = id
	c.logger = c.logger.With(zap.String("session_id", id))

	c.setState(StateReady)
	c.send(NewSessionReady(id, readyMessage))
	c.setState(StateIdle)
	c.logger.Info("voice session ready")

	turns := make(chan utterance, c.queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(turns)
		return c.readLoop(gctx, turns)
	})
	g.Go(func() error {
		c.turnLoop(gctx, turns)
		return nil
	})

	err = g.Wait()
	c.logger.Info("voice session closed", zap.Error(err))
	return err
}

func (c *Connection) resolveSession(ctx context.Context, requestedID string) (string, error) {
	requestedID = strings.TrimSpace(requestedID)
	if requestedID != "" && requestedID != NewSessionID {
		if _, err := c.store.Get(ctx, requestedID); err == nil {
			return requestedID, nil
		}
		c.logger.Info("unknown session requested, creating a new one", zap.String("requested_id", requestedID))
	}

	id, err := c.store.Create(ctx)
	if err != nil {
		c.metrics.RecordSessionCreated("rejected")
		return "", err
	}
	c.metrics.RecordSessionCreated("ok")
	return id, nil
}

func (c *Connection) readLoop(ctx context.Context, turns chan<- utterance) error {
	buf := NewAudioBuffer()
	for {
		msgType, data, err := c.transport.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.guard("audio", func() { c.handleAudio(buf, data) })
		case websocket.TextMessage:
			var next *AudioBuffer
			c.guard("control", func() { next = c.handleControl(ctx, buf, data, turns) })
			if next != nil {
				buf = next
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Connection) handleAudio(buf *AudioBuffer, chunk []byte) {
	// 没有排队或进行中的轮次时，残留的打断标记作废
	if c.finished.Load() == c.sealed.Load() {
		c.interruptMark.Store(noInterrupt)
	}
	if err := buf.Push(chunk); err != nil {
		c.logger.Warn("audio chunk dropped", zap.Error(err))
	}
}

type controlMessage struct {
	Type string `json:"type"`
}

// handleControl 在语音被移交后返回新的缓冲
func (c *Connection) handleControl(ctx context.Context, buf *AudioBuffer, data []byte, turns chan<- utterance) *AudioBuffer {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("control frame ignored", zap.Error(fmt.Errorf("%w: %w", ErrProtocol, err)))
		return nil
	}

	switch msg.Type {
	case "audio_end":
		buf.Seal()
		prev := c.sealed.Load()
		// 先占用编号，之后到达的 interrupt 才能作用于这一轮
		c.sealed.Store(prev + 1)
		select {
		case turns <- utterance{buf: buf, seq: prev + 1}:
		case <-ctx.Done():
			c.sealed.Store(prev)
		default:
			c.sealed.Store(prev)
			c.logger.Warn("turn queue full, utterance dropped", zap.Int("queued", c.queueSize))
			c.send(NewError("Too many pending utterances"))
		}
		return NewAudioBuffer()
	case "interrupt":
		c.interruptMark.Store(c.sealed.Load())
		c.send(NewInterruptAck())
	case "ping":
		c.send(NewPong())
	default:
		c.logger.Debug("control frame ignored", zap.Error(fmt.Errorf("%w: unknown type %q", ErrProtocol, msg.Type)))
	}
	return nil
}

func (c *Connection) turnLoop(ctx context.Context, turns <-chan utterance) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-turns:
			if !ok {
				return
			}
			c.runTurn(ctx, u)
		}
	}
}

func (c *Connection) runTurn(ctx context.Context, u utterance) {
	c.setState(StateAwaitingTurn)
	defer func() {
		c.finished.Store(u.seq)
		c.setState(StateIdle)
	}()

	interrupted := func() bool { return c.interruptMark.Load() >= u.seq }

	c.guard("turn", func() {
		result, err := c.runner.RunTurn(ctx, c.sessionID, u.buf, c, interrupted)
		if err != nil {
			c.logger.Warn("turn aborted", zap.Error(err))
			return
		}
		c.logger.Debug("turn finished",
			zap.Int64("turn_seq", u.seq),
			zap.Int("chunks_sent", result.ChunksSent),
			zap.Bool("interrupted", result.Interrupted),
		)
	})
}

// guard 把单条消息处理中的 panic 转成 error 事件
func (c *Connection) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", zap.String("stage", what), zap.Any("panic", r))
			c.send(NewError("Internal error"))
		}
	}()
	fn()
}

// Send 实现 Sink，多协程写入在此串行化
func (c *Connection) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := c.transport.(writeDeadliner); ok {
		_ = d.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	if err := c.transport.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

func (c *Connection) send(ev Event) {
	if err := c.Send(ev); err != nil {
		c.logger.Debug("outbound event dropped", zap.String("type", ev.EventType()), zap.Error(err))
	}
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}
