package realtime

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
	Close() error
}

// DialFunc opens one transport connection.
type DialFunc func(ctx context.Context, rawURL string) (Conn, error)

var _ Conn = (*websocket.Conn)(nil)

// WebSocketDialer returns a DialFunc backed by gorilla/websocket.
func WebSocketDialer(handshakeTimeout time.Duration) DialFunc {
	return func(ctx context.Context, rawURL string) (Conn, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
		c, _, err := d.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
