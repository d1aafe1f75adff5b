package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	DefaultTTSURL  = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	DefaultSpeaker = "zh_female_vv_uranus_bigtts"

	ttsFormat     = "mp3"
	ttsSampleRate = 24000

	resourceTTSDefault = "volc.service_type.10029"
	resourceTTSSeed    = "seed-tts-2.0"
	resourceTTSMega    = "volc.megatts.default"
)

// VolcengineTTS 火山引擎单向流式合成。Synthesize 在收到首个音频帧后返回，
// 其余音频由返回的流按需读取。
type VolcengineTTS struct {
	cfg    speechmodel.VolcengineConfig
	dialer *wsDialer
	logger *zap.Logger
}

// NewVolcengineTTS 创建 TTS 客户端
func NewVolcengineTTS(cfg speechmodel.VolcengineConfig, logger *zap.Logger) *VolcengineTTS {
	if cfg.TTSURL == "" {
		cfg.TTSURL = DefaultTTSURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineTTS{
		cfg:    cfg,
		dialer: newWSDialer(cfg.HandshakeTimeout),
		logger: logger.With(zap.String("provider", "volcengine-tts")),
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type ttsResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize 实现 voice.Synthesizer。音色与资源不匹配时依次尝试候选组合。
func (c *VolcengineTTS) Synthesize(ctx context.Context, text string) (voice.AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts text is empty")
	}

	var mismatch error
	for _, speaker := range speakerCandidates(c.cfg.Speaker) {
		for _, resource := range c.resourceCandidates(speaker) {
			stream, err := c.open(ctx, speaker, resource, text)
			if err == nil {
				return stream, nil
			}
			if !isResourceMismatch(err) {
				return nil, err
			}
			c.logger.Warn("speaker and resource mismatch, trying next candidate",
				zap.String("speaker", speaker), zap.String("resource", resource))
			mismatch = err
		}
	}
	return nil, mismatch
}

func (c *VolcengineTTS) resourceCandidates(speaker string) []string {
	if id := strings.TrimSpace(c.cfg.TTSResourceID); id != "" {
		return []string{id}
	}
	return resolveTTSResourceCandidates(speaker)
}

func (c *VolcengineTTS) open(ctx context.Context, speaker, resource, text string) (*volcengineStream, error) {
	header, connectID, err := volcengineHeaders(c.cfg, resource)
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.dial(ctx, c.cfg.TTSURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial volcengine tts: %w", err)
	}

	var req ttsRequest
	req.User.UID = connectID
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.AudioParams = ttsAudioParams{Format: ttsFormat, SampleRate: ttsSampleRate}
	req.ReqParams.Additions = `{"disable_markdown_filter":false}`

	payload, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	f, err := requestFrame(payload, compressNone)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, f.marshal()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send tts request: %w", err)
	}

	s := &volcengineStream{conn: conn}
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })

	first, err := s.next()
	if err != nil {
		s.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyAudio
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	s.pending = first
	return s, nil
}

type volcengineStream struct {
	conn    *websocket.Conn
	stop    func() bool
	pending []byte
	done    bool
	once    sync.Once
}

func (s *volcengineStream) Recv() ([]byte, error) {
	if s.pending != nil {
		chunk := s.pending
		s.pending = nil
		return chunk, nil
	}
	if s.done {
		return nil, io.EOF
	}
	return s.next()
}

func (s *volcengineStream) Format() string { return ttsFormat }

func (s *volcengineStream) Close() error {
	s.once.Do(func() {
		s.stop()
		s.conn.Close()
	})
	return nil
}

// next 读取下一段非空音频，会话结束时返回 io.EOF。
func (s *volcengineStream) next() ([]byte, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read tts response: %w", err)
		}
		f, err := unmarshalFrame(data)
		if err != nil {
			return nil, fmt.Errorf("decode tts frame: %w", err)
		}

		switch f.kind {
		case kindServerError:
			body, _ := f.body()
			return nil, &APIError{Provider: "volcengine-tts", Code: int(f.errorCode), Message: string(body)}

		case kindServerAudio:
			chunk, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("decompress audio chunk: %w", err)
			}
			if f.isLast() {
				s.done = true
			}
			if len(chunk) > 0 {
				return chunk, nil
			}
			if s.done {
				return nil, io.EOF
			}

		case kindServerFull:
			body, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("decompress tts payload: %w", err)
			}
			var res ttsResult
			if len(body) > 0 {
				// 事件帧的 payload 可能不是结果结构，解析失败直接忽略
				_ = json.Unmarshal(body, &res)
			}
			if res.Code != 0 && res.Code != 3000 {
				return nil, &APIError{Provider: "volcengine-tts", Code: res.Code, Message: res.Message}
			}
			if (f.hasEvent() && f.event == eventSessionFinished) || f.isLast() || res.Sequence < 0 {
				s.done = true
			}
			if res.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(res.Data)
				if err != nil {
					return nil, fmt.Errorf("decode base64 audio chunk: %w", err)
				}
				if len(chunk) > 0 {
					return chunk, nil
				}
			}
			if s.done {
				return nil, io.EOF
			}
		}
	}
}

func resolveTTSResourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return []string{resourceTTSDefault, resourceTTSSeed}
	}
	// 声音复刻音色
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceTTSMega}
	}

	normalized := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{resourceTTSSeed, resourceTTSDefault}
		}
	}
	return []string{resourceTTSDefault, resourceTTSSeed}
}

var speakerAliases = map[string]string{
	"default":                   DefaultSpeaker,
	"en_default":                "en_female_amy_jupiter_bigtts",
	"zh_male_m392_conversation": "zh_male_M392_conversation_wvae_bigtts",
}

// speakerCandidates 配置的音色优先，默认音色兜底，大小写不敏感去重。
func speakerCandidates(configured string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := speakerAliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}
	add(configured)
	add(DefaultSpeaker)
	return out
}
