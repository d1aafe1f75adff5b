package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	speechmodel "github.com/zhouzirui/voiceturn/backend/internal/model/speech"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	DefaultASRURL        = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	DefaultASRResourceID = "volc.bigasr.sauc.duration"
	DefaultSampleRate    = 16000

	// 16kHz 16bit 单声道 200ms
	asrPacketBytes = 6400
	// 首包占用序号 1，音频从 2 开始
	asrFirstAudioSeq = 2
)

// VolcengineASR 火山引擎流式语音识别，边收音频边上传，识别中间结果通过 onPartial 回调。
type VolcengineASR struct {
	cfg    speechmodel.VolcengineConfig
	dialer *wsDialer
	logger *zap.Logger
}

// NewVolcengineASR 创建 ASR 客户端，未配置的地址与资源使用默认值。
func NewVolcengineASR(cfg speechmodel.VolcengineConfig, logger *zap.Logger) *VolcengineASR {
	if cfg.ASRURL == "" {
		cfg.ASRURL = DefaultASRURL
	}
	if cfg.ASRResourceID == "" {
		cfg.ASRResourceID = DefaultASRResourceID
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineASR{
		cfg:    cfg,
		dialer: newWSDialer(cfg.HandshakeTimeout),
		logger: logger.With(zap.String("provider", "volcengine-asr")),
	}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec"`
		Rate     int    `json:"rate"`
		Bits     int    `json:"bits"`
		Channel  int    `json:"channel"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn"`
		EnablePunc     bool   `json:"enable_punc"`
		ShowUtterances bool   `json:"show_utterances"`
		ResultType     string `json:"result_type"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text     string `json:"text"`
			Definite bool   `json:"definite"`
		} `json:"utterances,omitempty"`
	} `json:"result"`
}

func (r *asrResult) text() string {
	if r.Result.Text != "" {
		return r.Result.Text
	}
	parts := make([]string, 0, len(r.Result.Utterances))
	for _, u := range r.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Transcribe 实现 voice.Transcriber。
func (c *VolcengineASR) Transcribe(ctx context.Context, audio voice.AudioSource, onPartial, onFinal func(text string)) (string, error) {
	header, connectID, err := volcengineHeaders(c.cfg, c.cfg.ASRResourceID)
	if err != nil {
		return "", err
	}

	conn, resp, err := c.dialer.dial(ctx, c.cfg.ASRURL, header)
	if err != nil {
		return "", fmt.Errorf("dial volcengine asr: %w", err)
	}
	defer conn.Close()

	logger := c.logger.With(zap.String("connect_id", connectID))
	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			logger = logger.With(zap.String("logid", logID))
		}
	}

	if err := c.sendRequest(conn, connectID); err != nil {
		return "", err
	}

	g, gctx := errgroup.WithContext(ctx)
	// ReadMessage 不感知 context，取消时直接关闭连接
	stop := context.AfterFunc(gctx, func() { conn.Close() })
	defer stop()

	sendCtx, cancelSend := context.WithCancel(gctx)
	defer cancelSend()

	var transcript string
	g.Go(func() error {
		err := c.streamAudio(sendCtx, conn, audio)
		if err != nil && sendCtx.Err() != nil && gctx.Err() == nil {
			// 服务端已给出最终结果
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancelSend()
		text, err := c.receive(conn, logger, onPartial, onFinal)
		transcript = text
		return err
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	logger.Debug("asr finished", zap.Int("chars", len(transcript)))
	return transcript, nil
}

func (c *VolcengineASR) sendRequest(conn *websocket.Conn, uid string) error {
	var req asrRequest
	req.User.UID = uid
	req.Audio.Language = c.cfg.Language
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = c.cfg.SampleRate
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal asr request: %w", err)
	}
	f, err := requestFrame(payload, compressGzip)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, f.marshal()); err != nil {
		return fmt.Errorf("send asr request: %w", err)
	}
	return nil
}

// streamAudio 把客户端分片重新切成固定大小的包发送，留住最后一包以便打上结束标记。
func (c *VolcengineASR) streamAudio(ctx context.Context, conn *websocket.Conn, audio voice.AudioSource) error {
	seq := int32(asrFirstAudioSeq)
	send := func(packet []byte, last bool) error {
		f, err := audioFrame(packet, seq, last)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, f.marshal()); err != nil {
			return fmt.Errorf("send audio packet %d: %w", seq, err)
		}
		seq++
		return nil
	}

	var pending []byte
	for {
		chunk, err := audio.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return send(pending, true)
		}
		if err != nil {
			return err
		}
		pending = append(pending, chunk...)
		for len(pending) > asrPacketBytes {
			if err := send(pending[:asrPacketBytes], false); err != nil {
				return err
			}
			pending = pending[asrPacketBytes:]
		}
	}
}

func (c *VolcengineASR) receive(conn *websocket.Conn, logger *zap.Logger, onPartial, onFinal func(string)) (string, error) {
	var latest, lastPartial string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read asr response: %w", err)
		}
		f, err := unmarshalFrame(data)
		if err != nil {
			return "", fmt.Errorf("decode asr frame: %w", err)
		}

		switch f.kind {
		case kindServerError:
			body, _ := f.body()
			return "", &APIError{Provider: "volcengine-asr", Code: int(f.errorCode), Message: string(body)}

		case kindServerFull:
			body, err := f.body()
			if err != nil {
				return "", fmt.Errorf("decompress asr payload: %w", err)
			}
			var res asrResult
			if len(body) > 0 {
				if err := json.Unmarshal(body, &res); err != nil {
					logger.Warn("unparsable asr payload", zap.Error(err))
				}
			}
			if res.Code != 0 && res.Code != 20000000 {
				return "", &APIError{Provider: "volcengine-asr", Code: res.Code, Message: res.Message}
			}
			if text := res.text(); text != "" {
				latest = text
			}

			if f.isLast() || res.Sequence < 0 {
				if latest != "" && onFinal != nil {
					onFinal(latest)
				}
				return latest, nil
			}
			if latest != "" && latest != lastPartial && onPartial != nil {
				onPartial(latest)
				lastPartial = latest
			}
		}
	}
}
