package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport hands out in-memory connections and records every dial.
type fakeTransport struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	dialErr error
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// conn waits for the i-th successful dial.
func (t *fakeTransport) conn(tb testing.TB, i int) *fakeConn {
	tb.Helper()
	var c *fakeConn
	waitFor(tb, func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		if len(t.conns) <= i {
			return false
		}
		c = t.conns[i]
		return true
	}, "connection %d was never dialed", i)
	return c
}

type fakeConn struct {
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (string, error) {
	select {
	case payload := <-c.in:
		return payload, nil
	case <-c.closed:
		return "", errors.New("connection closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, line string) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, line)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push delivers one inbound payload (possibly several batched lines).
func (c *fakeConn) push(payload string) {
	c.in <- payload
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *fakeConn) waitWrite(tb testing.TB, want string) {
	tb.Helper()
	waitFor(tb, func() bool {
		for _, w := range c.written() {
			if w == want {
				return true
			}
		}
		return false
	}, "line %q was never written (got %v)", want, c.written())
}

func waitFor(tb testing.TB, cond func() bool, format string, args ...any) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatalf(format, args...)
}

// testConfig returns session settings tuned for fast tests.
func testConfig(ft *fakeTransport) Config {
	return Config{
		URL:               "wss://fake.local",
		Room:              "room",
		AccessToken:       "tok",
		Username:          "somebot",
		Transport:         ft,
		JoinTimeout:       80 * time.Millisecond,
		ReconnectBase:     5 * time.Millisecond,
		ReconnectMax:      20 * time.Millisecond,
		MaxAttempts:       3,
		KeepAliveInterval: time.Hour,
		AuthSettleDelay:   time.Millisecond,
	}
}

func confirmJoin(c *fakeConn) {
	c.push(":somebot!somebot@somebot.tmi.twitch.tv JOIN #room")
}

func waitConnected(tb testing.TB, s *Session) {
	tb.Helper()
	waitFor(tb, func() bool {
		_, connected, _ := s.Status()
		return connected
	}, "session never reached connected state")
}
