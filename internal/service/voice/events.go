package voice

import (
	"encoding/base64"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

// 下行事件类型
const (
	TypeSessionReady      = "session_ready"
	TypeTranscriptPartial = "transcript_partial"
	TypeTranscriptFinal   = "transcript_final"
	TypeExtraction        = "extraction"
	TypeAudioChunk        = "audio_chunk"
	TypeAudioDone         = "audio_done"
	TypeInterruptAck      = "interrupt_ack"
	TypeInterrupt         = "interrupt"
	TypePong              = "pong"
	TypeInfo              = "info"
	TypeError             = "error"
)

// Event 一条下行 JSON 消息
type Event interface {
	EventType() string
}

// Sink 接收下行事件，实现方负责串行写入
type Sink interface {
	Send(ev Event) error
}

type SessionReadyEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

func (e SessionReadyEvent) EventType() string { return e.Type }

func NewSessionReady(sessionID, message string) SessionReadyEvent {
	return SessionReadyEvent{Type: TypeSessionReady, SessionID: sessionID, Message: message}
}

type TranscriptEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (e TranscriptEvent) EventType() string { return e.Type }

func NewTranscriptPartial(text string) TranscriptEvent {
	return TranscriptEvent{Type: TypeTranscriptPartial, Text: text}
}

func NewTranscriptFinal(text string) TranscriptEvent {
	return TranscriptEvent{Type: TypeTranscriptFinal, Text: text}
}

type ExtractionEvent struct {
	Type                  string               `json:"type"`
	Entities              []model.Entity       `json:"entities"`
	Relationships         []model.Relationship `json:"relationships"`
	Sentiment             string               `json:"sentiment"`
	Intent                string               `json:"intent"`
	MissingInfo           []string             `json:"missing_info"`
	TriggerClarification  bool                 `json:"trigger_clarification"`
	ClarificationQuestion string               `json:"clarification_question"`
	TurnCount             int                  `json:"turn_count"`
}

func (e ExtractionEvent) EventType() string { return e.Type }

func NewExtractionEvent(res ExtractionResult, turnCount int) ExtractionEvent {
	ev := ExtractionEvent{
		Type:                  TypeExtraction,
		Entities:              res.Entities,
		Relationships:         res.Relationships,
		Sentiment:             res.Sentiment,
		Intent:                res.Intent,
		MissingInfo:           res.MissingInfo,
		TriggerClarification:  res.Clarify,
		ClarificationQuestion: res.ClarificationQuestion,
		TurnCount:             turnCount,
	}
	if ev.Entities == nil {
		ev.Entities = []model.Entity{}
	}
	if ev.Relationships == nil {
		ev.Relationships = []model.Relationship{}
	}
	if ev.MissingInfo == nil {
		ev.MissingInfo = []string{}
	}
	return ev
}

type AudioChunkEvent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	Sequence int    `json:"sequence"`
	Format   string `json:"format"`
}

func (e AudioChunkEvent) EventType() string { return e.Type }

// NewAudioChunk 把音频 base64 编码后放进 JSON
func NewAudioChunk(audio []byte, sequence int, format string) AudioChunkEvent {
	return AudioChunkEvent{
		Type:     TypeAudioChunk,
		Data:     base64.StdEncoding.EncodeToString(audio),
		Sequence: sequence,
		Format:   format,
	}
}

type AudioDoneEvent struct {
	Type          string `json:"type"`
	SequenceTotal int    `json:"sequence_total"`
}

func (e AudioDoneEvent) EventType() string { return e.Type }

func NewAudioDone(total int) AudioDoneEvent {
	return AudioDoneEvent{Type: TypeAudioDone, SequenceTotal: total}
}

// SignalEvent 不带负载的信号事件，如 interrupt_ack 与 pong
type SignalEvent struct {
	Type string `json:"type"`
}

func (e SignalEvent) EventType() string { return e.Type }

func NewInterruptAck() SignalEvent { return SignalEvent{Type: TypeInterruptAck} }
func NewInterrupted() SignalEvent  { return SignalEvent{Type: TypeInterrupt} }
func NewPong() SignalEvent         { return SignalEvent{Type: TypePong} }

type MessageEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e MessageEvent) EventType() string { return e.Type }

func NewInfo(message string) MessageEvent  { return MessageEvent{Type: TypeInfo, Message: message} }
func NewError(message string) MessageEvent { return MessageEvent{Type: TypeError, Message: message} }
