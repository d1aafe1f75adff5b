package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flakyServer(t *testing.T, failures int32, status int) (string, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.WriteHeader(status)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err == nil {
			conn.Close()
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), &calls
}

func TestDialRetriesServerErrors(t *testing.T) {
	url, calls := flakyServer(t, 2, http.StatusServiceUnavailable)
	d := newWSDialer(time.Second)
	d.retryDelay = time.Millisecond

	conn, _, err := d.dial(context.Background(), url, nil)
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDialDoesNotRetryAuthFailure(t *testing.T) {
	url, calls := flakyServer(t, 5, http.StatusUnauthorized)
	d := newWSDialer(time.Second)
	d.retryDelay = time.Millisecond

	_, resp, err := d.dial(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDialGivesUp(t *testing.T) {
	url, calls := flakyServer(t, 10, http.StatusBadGateway)
	d := newWSDialer(time.Second)
	d.retryDelay = time.Millisecond

	_, _, err := d.dial(context.Background(), url, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}
