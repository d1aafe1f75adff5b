package voice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/voiceturn/backend/internal/service/extraction"
	sessionservice "github.com/zhouzirui/voiceturn/backend/internal/service/session"
	voicesvc "github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

// echoTranscriber 把收到的字节数写进转写结果
type echoTranscriber struct{ text string }

func (e echoTranscriber) Transcribe(ctx context.Context, audio voicesvc.AudioSource, _, _ func(string)) (string, error) {
	for {
		_, err := audio.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return e.text, nil
		}
		if err != nil {
			return "", err
		}
	}
}

type cannedSynthesizer struct{}

func (cannedSynthesizer) Synthesize(context.Context, string) (voicesvc.AudioStream, error) {
	return voicesvc.NewChunkStream("mp3", []byte("a"), []byte("b")), nil
}

type wireEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Text      string `json:"text"`
	Sequence  int    `json:"sequence"`
	Intent    string `json:"intent"`
}

func newServer(t *testing.T, maxSessions int) (string, *sessionservice.Store) {
	t.Helper()
	store := sessionservice.NewStore(sessionservice.WithMaxSessions(maxSessions))
	orch := voicesvc.NewOrchestrator(store,
		echoTranscriber{text: "I want to book a table"},
		extraction.NewHeuristic(),
		cannedSynthesizer{})

	r := chi.NewRouter()
	New(store, orch, nil, nil, WithKeepalive(5*time.Second, time.Second)).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), store
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestVoiceTurnOverWebsocket(t *testing.T) {
	url, store := newServer(t, 5)
	conn := dial(t, url+"/ws/voice/new")

	ready := readEvent(t, conn)
	require.Equal(t, voicesvc.TypeSessionReady, ready.Type)
	require.NotEmpty(t, ready.SessionID)
	assert.NotEmpty(t, ready.Message)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 320)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_end"}`)))

	var types []string
	for {
		ev := readEvent(t, conn)
		types = append(types, ev.Type)
		if ev.Type == voicesvc.TypeExtraction {
			assert.Equal(t, "booking", ev.Intent)
		}
		if ev.Type == voicesvc.TypeAudioDone {
			break
		}
	}
	assert.Equal(t, []string{
		voicesvc.TypeTranscriptFinal,
		voicesvc.TypeExtraction,
		voicesvc.TypeAudioChunk,
		voicesvc.TypeAudioChunk,
		voicesvc.TypeAudioDone,
	}, types)

	sess, err := store.Get(context.Background(), ready.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.TurnCount)
	assert.Len(t, sess.History, 2)
}

func TestReconnectKeepsSession(t *testing.T) {
	url, store := newServer(t, 5)
	id, err := store.Create(context.Background())
	require.NoError(t, err)

	conn := dial(t, url+"/ws/voice/"+id)
	ready := readEvent(t, conn)
	assert.Equal(t, id, ready.SessionID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, voicesvc.TypePong, readEvent(t, conn).Type)
}

func TestCapacityRejectionClosesWithTryAgainLater(t *testing.T) {
	url, _ := newServer(t, 1)

	first := dial(t, url+"/ws/voice/new")
	require.Equal(t, voicesvc.TypeSessionReady, readEvent(t, first).Type)

	second := dial(t, url+"/ws/voice/new")
	ev := readEvent(t, second)
	assert.Equal(t, voicesvc.TypeError, ev.Type)
	assert.NotEmpty(t, ev.Message)

	_, _, err := second.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)
}

func TestUnexpectedClose(t *testing.T) {
	assert.False(t, unexpectedClose(nil))
	assert.False(t, unexpectedClose(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.True(t, unexpectedClose(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	assert.True(t, unexpectedClose(errors.New("read tcp: connection reset")))
}

func TestEventsAreJSONObjects(t *testing.T) {
	url, _ := newServer(t, 5)
	conn := dial(t, url+"/ws/voice/new")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, voicesvc.TypeSessionReady, generic["type"])
}
