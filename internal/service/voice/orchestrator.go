package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

const (
	DefaultHistoryLimit = 10

	msgNoSpeech        = "No speech detected"
	msgSessionNotFound = "Session not found"
)

// SessionStore 一轮对话用到的会话存储方法
type SessionStore interface {
	Get(ctx context.Context, id string) (model.Session, error)
	Replace(ctx context.Context, id string, sess model.Session) error
}

// TurnResult 一轮对话的汇总
type TurnResult struct {
	Transcript  string
	Extraction  ExtractionResult
	TurnCount   int
	ChunksSent  int
	Interrupted bool
}

// Orchestrator 对一段语音依次执行识别、抽取与合成
type Orchestrator struct {
	store        SessionStore
	stt          Transcriber
	extractor    Extractor
	tts          Synthesizer
	historyLimit int
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// OrchestratorOption 编排器的可选配置
type OrchestratorOption func(*Orchestrator)

// WithHistoryLimit 限制传给抽取器的历史条数
func WithHistoryLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func WithOrchestratorMetrics(c *metrics.Collector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = c }
}

func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator 把三个端口与会话存储组装起来
func NewOrchestrator(store SessionStore, stt Transcriber, extractor Extractor, tts Synthesizer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		stt:          stt,
		extractor:    extractor,
		tts:          tts,
		historyLimit: DefaultHistoryLimit,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// RunTurn 完整处理一段语音。任何失败都只向 sink 发送一条 error 事件，
// 返回的 error 仅用于日志。
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID string, audio AudioSource, sink Sink, interrupted func() bool) (TurnResult, error) {
	var result TurnResult
	logger := o.logger.With(zap.String("session_id", sessionID))

	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		o.emitError(logger, sink, msgSessionNotFound)
		o.metrics.RecordTurn(metrics.OutcomeFailed)
		return result, err
	}

	transcript, err := o.transcribe(ctx, audio, sink)
	if err != nil {
		logger.Warn("transcription failed", zap.Error(err))
		o.emitError(logger, sink, "Transcription failed")
		o.metrics.RecordTurn(metrics.OutcomeFailed)
		return result, &ProviderError{Stage: StageTranscription, Err: err}
	}
	result.Transcript = transcript

	if transcript == "" {
		o.send(logger, sink, NewInfo(msgNoSpeech))
		o.metrics.RecordTurn(metrics.OutcomeEmpty)
		return result, nil
	}

	start := time.Now()
	extraction, err := o.extractor.Extract(ctx, transcript, sess.RecentHistory(o.historyLimit))
	o.metrics.ObservePhase(metrics.PhaseExtraction, time.Since(start))
	if err != nil {
		logger.Warn("extraction failed", zap.Error(err))
		o.emitError(logger, sink, "Extraction failed")
		o.metrics.RecordTurn(metrics.OutcomeFailed)
		return result, &ProviderError{Stage: StageExtraction, Err: err}
	}
	result.Extraction = extraction

	spoken := extraction.SpokenText()
	sess = applyExtraction(sess, transcript, spoken, extraction)
	if err := o.store.Replace(ctx, sessionID, sess); err != nil {
		logger.Warn("persist session failed", zap.Error(err))
		o.emitError(logger, sink, msgSessionNotFound)
		o.metrics.RecordTurn(metrics.OutcomeFailed)
		return result, err
	}
	result.TurnCount = sess.TurnCount

	o.send(logger, sink, NewExtractionEvent(extraction, sess.TurnCount))
	logger.Info("extraction complete",
		zap.Int("turn_count", sess.TurnCount),
		zap.String("intent", extraction.Intent),
		zap.String("sentiment", extraction.Sentiment),
		zap.Bool("clarify", extraction.Clarify),
	)

	if strings.TrimSpace(spoken) == "" {
		o.metrics.RecordTurn(metrics.OutcomeCompleted)
		return result, nil
	}

	start = time.Now()
	sent, stopped, err := o.synthesize(ctx, spoken, sink, interrupted)
	o.metrics.ObservePhase(metrics.PhaseSynthesis, time.Since(start))
	result.ChunksSent = sent
	result.Interrupted = stopped

	switch {
	case err != nil:
		o.metrics.RecordTurn(metrics.OutcomeFailed)
		return result, err
	case stopped:
		logger.Info("playback interrupted", zap.Int("chunks_sent", sent))
		o.metrics.RecordTurn(metrics.OutcomeInterrupted)
	default:
		o.metrics.RecordTurn(metrics.OutcomeCompleted)
	}
	return result, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, audio AudioSource, sink Sink) (string, error) {
	fwd := &transcriptForwarder{sink: sink, logger: o.logger}

	start := time.Now()
	transcript, err := o.stt.Transcribe(ctx, audio, fwd.partial, fwd.final)
	sawFinal := fwd.close()
	o.metrics.ObservePhase(metrics.PhaseTranscription, time.Since(start))
	if err != nil {
		return "", err
	}

	transcript = strings.TrimSpace(transcript)
	if transcript != "" && !sawFinal {
		o.send(o.logger, sink, NewTranscriptFinal(transcript))
	}
	return transcript, nil
}

// synthesize 持续转发合成音频直到读完、被打断或出错。
// 每次拉取与转发之前都会检查打断判定。
func (o *Orchestrator) synthesize(ctx context.Context, text string, sink Sink, interrupted func() bool) (int, bool, error) {
	if interrupted() {
		o.send(o.logger, sink, NewInterrupted())
		return 0, true, nil
	}

	stream, err := o.tts.Synthesize(ctx, text)
	if err != nil {
		o.logger.Warn("synthesis failed", zap.Error(err))
		o.emitError(o.logger, sink, "Synthesis failed")
		return 0, false, &ProviderError{Stage: StageSynthesis, Err: err}
	}
	defer stream.Close()

	seq := 0
	for {
		if interrupted() {
			o.send(o.logger, sink, NewInterrupted())
			return seq, true, nil
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			o.logger.Warn("synthesis stream failed", zap.Int("chunks_sent", seq), zap.Error(err))
			o.emitError(o.logger, sink, "Synthesis failed")
			return seq, false, &ProviderError{Stage: StageSynthesis, Err: err}
		}
		if len(chunk) == 0 {
			continue
		}

		if interrupted() {
			o.send(o.logger, sink, NewInterrupted())
			return seq, true, nil
		}

		if err := sink.Send(NewAudioChunk(chunk, seq, stream.Format())); err != nil {
			return seq, false, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		seq++
		o.metrics.RecordAudioChunk()
	}

	o.send(o.logger, sink, NewAudioDone(seq))
	return seq, false, nil
}

func applyExtraction(sess model.Session, transcript, spoken string, res ExtractionResult) model.Session {
	sess.History = append(sess.History,
		model.Turn{Role: model.RoleUser, Text: transcript},
		model.Turn{Role: model.RoleAssistant, Text: spoken},
	)
	sess.TurnCount++
	sess.Extraction = model.Extraction{
		Entities:      res.Entities,
		Relationships: res.Relationships,
		Sentiment:     res.Sentiment,
		Intent:        res.Intent,
		MissingInfo:   res.MissingInfo,
	}
	sess.PendingClarification = res.Clarify
	sess.ClarificationQuestion = res.ClarificationQuestion
	return sess
}

func (o *Orchestrator) send(logger *zap.Logger, sink Sink, ev Event) {
	if err := sink.Send(ev); err != nil {
		logger.Debug("outbound event dropped", zap.String("type", ev.EventType()), zap.Error(err))
	}
}

func (o *Orchestrator) emitError(logger *zap.Logger, sink Sink, message string) {
	o.send(logger, sink, NewError(message))
}

// transcriptForwarder 在关闭前把识别回调转发到 sink
type transcriptForwarder struct {
	mu       sync.Mutex
	sink     Sink
	logger   *zap.Logger
	closed   bool
	sawFinal bool
}

func (f *transcriptForwarder) partial(text string) {
	f.forward(NewTranscriptPartial(text), false)
}

func (f *transcriptForwarder) final(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	f.forward(NewTranscriptFinal(text), true)
}

func (f *transcriptForwarder) forward(ev TranscriptEvent, final bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if final {
		f.sawFinal = true
	}
	if err := f.sink.Send(ev); err != nil {
		f.logger.Debug("transcript event dropped", zap.Error(err))
	}
}

func (f *transcriptForwarder) close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.sawFinal
}
