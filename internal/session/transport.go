package session

import "context"

// Transport dials the chat endpoint. Implemented by the WebSocket
// transport in production and by in-memory fakes in tests.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one live socket. Read returns a single received payload,
// which may carry several CRLF-separated protocol lines batched
// together. Write sends one line; the implementation appends the
// line terminator.
type Conn interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, line string) error
	Close() error
}
