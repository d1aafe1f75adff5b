package speech

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultDialAttempts = 3
	defaultRetryDelay   = 250 * time.Millisecond
)

// wsDialer 带重试的 websocket 握手。只有网络错误和 5xx 会重试，鉴权类失败直接返回。
type wsDialer struct {
	dialer     *websocket.Dialer
	attempts   int
	retryDelay time.Duration
}

func newWSDialer(handshakeTimeout time.Duration) *wsDialer {
	return &wsDialer{
		dialer:     &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		attempts:   defaultDialAttempts,
		retryDelay: defaultRetryDelay,
	}
}

func (d *wsDialer) dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		conn, resp, err := d.dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if !retryableHandshake(resp) {
			return nil, resp, handshakeError(resp, err)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * d.retryDelay):
		}
	}
	return nil, nil, fmt.Errorf("websocket dial failed after %d attempts: %w", d.attempts, lastErr)
}

func retryableHandshake(resp *http.Response) bool {
	return resp == nil || resp.StatusCode >= http.StatusInternalServerError
}

func handshakeError(resp *http.Response, err error) error {
	if resp != nil {
		return fmt.Errorf("websocket handshake rejected with status %d: %w", resp.StatusCode, err)
	}
	return fmt.Errorf("websocket dial failed: %w", err)
}
