package ws

import (
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Client is one connected viewer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64)}
}

// offer queues b without blocking; a full buffer drops the frame.
func (c *Client) offer(b []byte) bool {
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}
