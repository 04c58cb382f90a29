package session

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// maxFrameBytes bounds a single inbound frame; chat lines are small
// but a receive may batch many of them.
const maxFrameBytes = 1 << 20

// WSTransport dials the chat endpoint over WebSocket text frames.
type WSTransport struct{}

func (WSTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	c.SetReadLimit(maxFrameBytes)
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) Write(ctx context.Context, line string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(line+"\r\n"))
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}
