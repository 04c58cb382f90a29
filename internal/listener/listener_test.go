package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/registry"
	"github.com/vovakirdan/chatlink/internal/session"
)

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (session.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &fakeConn{in: make(chan string, 16), closed: make(chan struct{})}
	t.conns = append(t.conns, c)
	return c, nil
}

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
	}, "connection was never dialed")
	return c
}

type fakeConn struct {
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes []string
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
	c.mu.Lock()
	c.writes = append(c.writes, line)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(line string) { c.in <- line }

func waitFor(tb testing.TB, cond func() bool, msg string) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatal(msg)
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	reg := registry.New(registry.Config{
		URL:               "wss://fake.local",
		Transport:         ft,
		JoinTimeout:       80 * time.Millisecond,
		ReconnectBase:     5 * time.Millisecond,
		ReconnectMax:      20 * time.Millisecond,
		MaxAttempts:       3,
		KeepAliveInterval: time.Hour,
		AuthSettleDelay:   time.Millisecond,
	}, zerolog.Nop(), nil)
	t.Cleanup(reg.StopAll)
	return New(reg, opts, zerolog.Nop()), ft
}

func TestListenRecordsMessages(t *testing.T) {
	c, ft := newTestClient(t, Options{Room: "room", Username: "somebot"})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.IsRunning() {
		t.Fatal("client not running after start")
	}

	conn := ft.conn(t, 0)
	conn.push(":somebot!somebot@somebot.tmi.twitch.tv JOIN #room")
	waitFor(t, c.IsConnected, "never connected")
	if c.Err() != nil {
		t.Fatalf("err = %v, want nil while healthy", c.Err())
	}

	conn.push("@display-name=Bob :bob!bob@bob.tmi.twitch.tv PRIVMSG #room :first")
	conn.push("@display-name=Bob :bob!bob@bob.tmi.twitch.tv PRIVMSG #room :second")
	waitFor(t, func() bool { return len(c.Messages()) == 2 }, "messages never recorded")

	msgs := c.Messages()
	if msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("messages = %+v", msgs)
	}

	if err := c.SendMessage("hello"); err != nil {
		t.Fatal(err)
	}

	c.Stop()
	if c.IsRunning() || c.IsConnected() {
		t.Fatal("client still reports running after stop")
	}
	if err := c.SendMessage("late"); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after stop", err)
	}
}

func TestRingDropsOldestWhenFull(t *testing.T) {
	c, ft := newTestClient(t, Options{Room: "room", Username: "somebot", BufferSize: 3})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := ft.conn(t, 0)
	conn.push(":somebot!somebot@somebot.tmi.twitch.tv JOIN #room")
	waitFor(t, c.IsConnected, "never connected")

	for i := 1; i <= 5; i++ {
		conn.push(fmt.Sprintf(":bob!bob@bob.tmi.twitch.tv PRIVMSG #room :msg-%d", i))
	}
	waitFor(t, func() bool {
		msgs := c.Messages()
		return len(msgs) == 3 && msgs[2].Text == "msg-5"
	}, "ring never settled")

	msgs := c.Messages()
	if msgs[0].Text != "msg-3" || msgs[1].Text != "msg-4" || msgs[2].Text != "msg-5" {
		t.Fatalf("messages = %+v", msgs)
	}
}

func TestOnMessageCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c, ft := newTestClient(t, Options{
		Room:     "room",
		Username: "somebot",
		OnMessage: func(msg irc.ChatMessage) {
			mu.Lock()
			seen = append(seen, msg.Text)
			mu.Unlock()
		},
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := ft.conn(t, 0)
	conn.push(":somebot!somebot@somebot.tmi.twitch.tv JOIN #room")
	waitFor(t, c.IsConnected, "never connected")

	conn.push(":bob!bob@bob.tmi.twitch.tv PRIVMSG #room :callback me")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "callback me"
	}, "callback never fired")
}
