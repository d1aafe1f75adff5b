// voiceclient 是一个手动联调工具：把一段原始 PCM 录音推送到 /ws/voice，
// 打印服务端事件，并把回放音频写入本地文件。
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

const defaultChunkSize = 3200

type serverEvent struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id,omitempty"`
	Text          string `json:"text,omitempty"`
	Message       string `json:"message,omitempty"`
	Data          string `json:"data,omitempty"`
	Sequence      int    `json:"sequence,omitempty"`
	Format        string `json:"format,omitempty"`
	SequenceTotal int    `json:"sequence_total,omitempty"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	server := flag.String("server", envOr("VOICECLIENT_SERVER", "http://localhost:8000"), "后端地址")
	session := flag.String("session", "", "已有 sessionID，留空则自动创建")
	audioPath := flag.String("audio", "", "16kHz 16-bit mono PCM 文件路径")
	outputPath := flag.String("out", "", "回放音频输出路径 (默认根据格式自动生成)")
	chunkSize := flag.Int("chunk", defaultChunkSize, "每个二进制帧的字节数")
	timeout := flag.Duration("timeout", 60*time.Second, "整轮超时时间")
	flag.Parse()

	if *audioPath == "" {
		flag.Usage()
		log.Fatal("请通过 -audio 指定 PCM 文件")
	}
	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sessionID := *session
	if sessionID == "" {
		sessionID, err = createSession(ctx, http.DefaultClient, *server)
		if err != nil {
			log.Fatalf("创建会话失败: %v", err)
		}
		log.Printf("已创建会话 %s", sessionID)
	}

	wsURL, err := voiceURL(*server, sessionID)
	if err != nil {
		log.Fatalf("地址无效: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("连接 %s 失败: %v", wsURL, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	result, err := runTurn(conn, audio, *chunkSize, func(ev serverEvent) { printEvent(ev) })
	if err != nil {
		log.Fatalf("对话失败: %v", err)
	}
	if len(result.audio) == 0 {
		log.Printf("未收到回放音频")
		return
	}

	out := *outputPath
	if out == "" {
		out = fmt.Sprintf("voiceclient-%d.%s", time.Now().Unix(), result.format)
	}
	if err := os.WriteFile(out, result.audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}
	log.Printf("回放音频已写入 %s (%d bytes)", out, len(result.audio))
}

type turnResult struct {
	audio  []byte
	format string
}

// runTurn 等待 session_ready，推送整段音频并收集回放，直到 audio_done 或 error。
func runTurn(conn *websocket.Conn, audio []byte, chunkSize int, onEvent func(serverEvent)) (turnResult, error) {
	var res turnResult
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	ready, err := readEvent(conn)
	if err != nil {
		return res, err
	}
	onEvent(ready)
	if ready.Type != "session_ready" {
		return res, fmt.Errorf("unexpected first event %q", ready.Type)
	}

	for start := 0; start < len(audio); start += chunkSize {
		end := min(start+chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[start:end]); err != nil {
			return res, fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "audio_end"}); err != nil {
		return res, fmt.Errorf("send audio_end: %w", err)
	}

	for {
		ev, err := readEvent(conn)
		if err != nil {
			return res, err
		}
		onEvent(ev)
		switch ev.Type {
		case "audio_chunk":
			chunk, err := base64.StdEncoding.DecodeString(ev.Data)
			if err != nil {
				return res, fmt.Errorf("decode audio chunk %d: %w", ev.Sequence, err)
			}
			res.audio = append(res.audio, chunk...)
			res.format = ev.Format
		case "audio_done":
			return res, nil
		case "error":
			return res, errors.New(ev.Message)
		}
	}
}

func readEvent(conn *websocket.Conn) (serverEvent, error) {
	var ev serverEvent
	_, data, err := conn.ReadMessage()
	if err != nil {
		return ev, fmt.Errorf("read event: %w", err)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

func createSession(ctx context.Context, client *http.Client, server string) (string, error) {
	endpoint := strings.TrimRight(server, "/") + "/api/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.SessionID == "" {
		return "", errors.New("empty session_id in response")
	}
	return payload.SessionID, nil
}

// voiceURL 把 http(s) 后端地址换成对应的 ws(s) 语音入口。
func voiceURL(server, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/voice/" + url.PathEscape(sessionID)
	return u.String(), nil
}

func printEvent(ev serverEvent) {
	switch ev.Type {
	case "audio_chunk":
		log.Printf("<- audio_chunk seq=%d format=%s", ev.Sequence, ev.Format)
	case "audio_done":
		log.Printf("<- audio_done total=%d", ev.SequenceTotal)
	case "transcript_partial", "transcript_final":
		log.Printf("<- %s %q", ev.Type, ev.Text)
	case "session_ready", "info", "error":
		log.Printf("<- %s %s", ev.Type, ev.Message)
	default:
		log.Printf("<- %s", ev.Type)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
