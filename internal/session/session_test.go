package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/irc"
)

func TestHandshakeOrder(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	conn.waitWrite(t, "JOIN #room")

	writes := conn.written()
	want := []string{"PASS oauth:tok", "NICK somebot", "JOIN #room"}
	idx := 0
	for _, w := range writes {
		if idx < len(want) && w == want[idx] {
			idx++
		}
	}
	if idx != len(want) {
		t.Fatalf("handshake out of order: %v", writes)
	}
	// CAP REQ goes out before JOIN.
	capAt, joinAt := -1, -1
	for i, w := range writes {
		if strings.HasPrefix(w, "CAP REQ") {
			capAt = i
		}
		if w == "JOIN #room" {
			joinAt = i
		}
	}
	if capAt == -1 || capAt > joinAt {
		t.Fatalf("cap request missing or after join: %v", writes)
	}
}

func TestJoinConfirmationConnects(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testConfig(ft)
	cfg.Username = "SomeBot"
	cfg.Room = "ROOM"

	var mu sync.Mutex
	var states []State
	cfg.OnStateChange = func(st State, _ error) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}

	s := New(cfg, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	conn.waitWrite(t, "JOIN #room")

	// Welcome is informational; it does not confirm membership.
	conn.push(":tmi.twitch.tv 001 somebot :Welcome, GLHF!")
	if _, connected, _ := s.Status(); connected {
		t.Fatal("welcome alone must not mark the session connected")
	}

	// Confirmation matches user and room case-insensitively.
	conn.push(":SomeBot!somebot@somebot.tmi.twitch.tv JOIN #ROOM")
	waitConnected(t, s)

	mu.Lock()
	defer mu.Unlock()
	var seen []string
	for _, st := range states {
		seen = append(seen, st.String())
	}
	joined := strings.Join(seen, ",")
	for _, want := range []string{"connecting", "authenticating", "joining", "connected"} {
		if !strings.Contains(joined, want) {
			t.Errorf("state %q missing from transitions %q", want, joined)
		}
	}
}

func TestJoinConfirmationIgnoresOtherUsers(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	conn.waitWrite(t, "JOIN #room")

	conn.push(":stranger!s@s.tmi.twitch.tv JOIN #room")
	time.Sleep(10 * time.Millisecond)
	if _, connected, _ := s.Status(); connected {
		t.Fatal("another user joining must not confirm the session")
	}
}

func TestPingPong(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	conn.push("PING :tmi.twitch.tv")
	conn.waitWrite(t, "PONG :tmi.twitch.tv")

	pongs := 0
	for _, w := range conn.written() {
		if strings.HasPrefix(w, "PONG") {
			pongs++
		}
	}
	if pongs != 1 {
		t.Fatalf("expected exactly one pong, got %d", pongs)
	}
}

func TestBatchedLinesHandledInOrder(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testConfig(ft)

	var mu sync.Mutex
	var texts []string
	cfg.OnMessage = func(msg irc.ChatMessage) {
		mu.Lock()
		texts = append(texts, msg.Text)
		mu.Unlock()
	}

	s := New(cfg, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	conn.push("PING :tmi.twitch.tv\r\n" +
		":bob!bob@bob.tmi.twitch.tv PRIVMSG #room :first\r\n" +
		":bob!bob@bob.tmi.twitch.tv PRIVMSG #room :second\r\n")
	conn.waitWrite(t, "PONG :tmi.twitch.tv")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 2
	}, "expected 2 messages, got %v", texts)

	mu.Lock()
	defer mu.Unlock()
	if texts[0] != "first" || texts[1] != "second" {
		t.Fatalf("messages out of order: %v", texts)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	conn.Close()

	next := ft.conn(t, 1)
	confirmJoin(next)
	waitConnected(t, s)

	if _, _, err := s.Status(); err != nil {
		t.Fatalf("error not cleared after successful rejoin: %v", err)
	}
}

func TestJoinTimeoutTriggersReconnect(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	first := ft.conn(t, 0)
	first.waitWrite(t, "JOIN #room")

	// No confirmation: the join timer must fail the attempt.
	ft.conn(t, 1)
	if !first.isClosed() {
		t.Fatal("timed-out connection was not closed")
	}
	_, _, err := s.Status()
	if err == nil || ErrorCode(err) != ErrCodeJoinTimeout {
		t.Fatalf("err = %v, want join timeout", err)
	}
}

func TestAuthFailureNoticeReconnects(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	conn.waitWrite(t, "NICK somebot")
	conn.push(":tmi.twitch.tv NOTICE * :Login authentication failed")

	ft.conn(t, 1)
	if !conn.isClosed() {
		t.Fatal("rejected connection was not closed")
	}
	_, _, err := s.Status()
	if err == nil || ErrorCode(err) != ErrCodeAuthFailure {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestMaxAttemptsStops(t *testing.T) {
	ft := &fakeTransport{dialErr: errors.New("connection refused")}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())

	waitFor(t, func() bool {
		state, _, _ := s.Status()
		return state == StateStopped
	}, "session never gave up")

	_, _, err := s.Status()
	if !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("err = %v, want ErrMaxAttempts", err)
	}

	dials := ft.dialCount()
	if dials != 3 {
		t.Fatalf("dials = %d, want 3", dials)
	}
	// No further attempt may be scheduled.
	time.Sleep(60 * time.Millisecond)
	if ft.dialCount() != dials {
		t.Fatal("session kept dialing after stopping")
	}
}

func TestStopSuppressesReconnect(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	s.Stop()
	if !conn.isClosed() {
		t.Fatal("stop did not close the connection")
	}

	time.Sleep(60 * time.Millisecond)
	if ft.dialCount() != 1 {
		t.Fatalf("stop triggered a reconnect: %d dials", ft.dialCount())
	}

	// Idempotent.
	s.Stop()
	state, _, _ := s.Status()
	if state != StateStopped {
		t.Fatalf("state = %v, want stopped", state)
	}
}

func TestSendRequiresConnected(t *testing.T) {
	ft := &fakeTransport{}
	s := New(testConfig(ft), zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	conn.waitWrite(t, "JOIN #room")

	if err := s.Send("too early"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}

	confirmJoin(conn)
	waitConnected(t, s)

	if err := s.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	conn.waitWrite(t, "PRIVMSG #room :hello")
}

func TestKeepAliveProbe(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testConfig(ft)
	cfg.KeepAliveInterval = 15 * time.Millisecond

	s := New(cfg, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	conn.waitWrite(t, "PING :chatlink")
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt, base, max)
		if d < prev {
			t.Fatalf("attempt %d: delay %v decreased from %v", attempt, d, prev)
		}
		if d > max {
			t.Fatalf("attempt %d: delay %v exceeds max %v", attempt, d, max)
		}
		prev = d
	}

	if d := backoffDelay(1, base, max); d != time.Second {
		t.Errorf("attempt 1 delay = %v, want 1s", d)
	}
	if d := backoffDelay(3, base, max); d != 4*time.Second {
		t.Errorf("attempt 3 delay = %v, want 4s", d)
	}
	if d := backoffDelay(8, base, max); d != max {
		t.Errorf("attempt 8 delay = %v, want capped at %v", d, max)
	}
}

func TestMessageHandlerPanicContained(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testConfig(ft)
	cfg.OnMessage = func(irc.ChatMessage) { panic("handler bug") }

	s := New(cfg, zerolog.Nop())
	s.Start(context.Background())
	defer s.Stop()

	conn := ft.conn(t, 0)
	confirmJoin(conn)
	waitConnected(t, s)

	conn.push(":bob!bob@bob.tmi.twitch.tv PRIVMSG #room :boom")
	// The read loop must survive; a ping still gets answered.
	conn.push("PING :tmi.twitch.tv")
	conn.waitWrite(t, "PONG :tmi.twitch.tv")
}
