package client

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// Conn is one live text-frame connection to the host.
type Conn interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, frame string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DefaultReadLimit caps one inbound frame when WebSocketDialer.ReadLimit is
// unset. A frame over the limit closes the connection (1009, message too big);
// with reconnect enabled the renderer dials again.
const DefaultReadLimit int64 = 1 << 20

// WebSocketDialer dials the host's /ws endpoint.
type WebSocketDialer struct {
	Header    http.Header
	ReadLimit int64
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	c.SetReadLimit(limit)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (string, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *wsConn) Write(ctx context.Context, frame string) error {
	return w.c.Write(ctx, websocket.MessageText, []byte(frame))
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}
