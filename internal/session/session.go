// Package session maintains one logical connection to one chat room:
// handshake, keep-alive, and the reconnect state machine. The session
// is driven entirely by transport reads and timers; lines from a
// single socket are parsed and dispatched strictly in arrival order.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/identity"
	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/metrics"
)

// State of the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateJoining
	StateConnected
	StateClosing
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoining:
		return "joining"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds everything one session needs. Zero durations and counts
// fall back to the defaults below.
type Config struct {
	URL         string
	Room        string
	AccessToken string
	Username    string

	// OnMessage receives every chat message for the session's room.
	// Bot deployments point this at the command dispatcher.
	OnMessage func(irc.ChatMessage)
	// OnStateChange observes lifecycle transitions. err is non-nil for
	// failure-driven transitions.
	OnStateChange func(state State, err error)

	Transport Transport
	// Metrics counts reconnects and auth failures. Optional.
	Metrics *metrics.Metrics

	JoinTimeout       time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxAttempts       int
	KeepAliveInterval time.Duration
	// AuthSettleDelay is the pause between the auth commands and JOIN,
	// giving the server time to process credentials before routing
	// room-scoped commands.
	AuthSettleDelay time.Duration
}

const (
	defaultJoinTimeout     = 10 * time.Second
	defaultReconnectBase   = time.Second
	defaultReconnectMax    = 30 * time.Second
	defaultMaxAttempts     = 8
	defaultKeepAlive       = 60 * time.Second
	defaultAuthSettleDelay = 500 * time.Millisecond
)

// Session is one connection to one room. All mutable state is guarded
// by mu; timer callbacks and the read loop validate their generation
// against gen so a superseded attempt can never act on the session.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu             sync.Mutex
	ctx            context.Context
	state          State
	conn           Conn
	gen            int
	nick           string // identity resolved for the current attempt
	attempts       int
	lastErr        error
	settleTimer    *time.Timer
	joinTimer      *time.Timer
	reconnectTimer *time.Timer
	keepAliveTimer *time.Timer
	stopped        bool
}

// New builds a session for the given room. Start must be called to
// open the first connection.
func New(cfg Config, logger zerolog.Logger) *Session {
	if cfg.Transport == nil {
		cfg.Transport = WSTransport{}
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = defaultKeepAlive
	}
	if cfg.AuthSettleDelay == 0 {
		cfg.AuthSettleDelay = defaultAuthSettleDelay
	}
	cfg.Room = strings.ToLower(strings.TrimPrefix(cfg.Room, "#"))

	return &Session{
		cfg:   cfg,
		log:   logger.With().Str("component", "session").Str("room", cfg.Room).Logger(),
		state: StateIdle,
	}
}

// Start opens the first connection attempt. Non-blocking; progress is
// reported through OnStateChange.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	gen := s.gen
	s.mu.Unlock()

	go s.connect(gen)
}

// Stop tears the session down: every timer is cancelled and the
// generation bumped before the socket is closed, so the close can
// never be mistaken for an unexpected disconnect. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateClosing
	s.gen++ // detach read loop and timers before closing
	s.cancelTimersLocked()
	conn := s.conn
	s.conn = nil
	s.state = StateStopped
	s.attempts = 0
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.notify(StateStopped, nil)
	s.log.Info().Msg("session stopped")
}

// Send posts a message to the room. Fails fast when not connected;
// sends are never queued.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	ctx := s.ctx
	s.mu.Unlock()

	if err := conn.Write(ctx, irc.FormatPrivMsg(s.cfg.Room, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Room returns the normalized room key.
func (s *Session) Room() string { return s.cfg.Room }

// Status reports the current state, connectivity, and the last error.
func (s *Session) Status() (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.state == StateConnected, s.lastErr
}

// connect runs one attempt: dial, handshake, join, then the read loop.
func (s *Session) connect(gen int) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	ident := identity.Resolve(s.cfg.AccessToken, s.cfg.Username)
	s.nick = ident.Nick
	ctx := s.ctx
	s.mu.Unlock()
	s.notify(StateConnecting, nil)

	conn, err := s.cfg.Transport.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.lost(gen, sessionError(ErrCodeTransport, err.Error()))
		return
	}

	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.state = StateAuthenticating
	s.mu.Unlock()
	s.notify(StateAuthenticating, nil)
	s.log.Debug().Str("nick", ident.Nick).Bool("anonymous", ident.Anonymous).Msg("authenticating")

	for _, line := range []string{
		irc.FormatPass(ident.Pass),
		irc.FormatNick(ident.Nick),
		irc.FormatCapReq(),
	} {
		if err := conn.Write(ctx, line); err != nil {
			s.lost(gen, sessionError(ErrCodeTransport, fmt.Sprintf("handshake write: %v", err)))
			return
		}
	}

	// Let the server settle the credentials before JOIN.
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.settleTimer = time.AfterFunc(s.cfg.AuthSettleDelay, func() {
		s.sendJoin(gen, conn)
	})
	s.mu.Unlock()

	s.readLoop(gen, conn)
}

// sendJoin fires after the settle delay: requests room membership and
// arms the join-confirmation timer.
func (s *Session) sendJoin(gen int, conn Conn) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateJoining
	ctx := s.ctx
	s.joinTimer = time.AfterFunc(s.cfg.JoinTimeout, func() {
		s.lost(gen, sessionError(ErrCodeJoinTimeout,
			fmt.Sprintf("no join confirmation for #%s within %s", s.cfg.Room, s.cfg.JoinTimeout)))
	})
	s.mu.Unlock()
	s.notify(StateJoining, nil)

	if err := conn.Write(ctx, irc.FormatJoin(s.cfg.Room)); err != nil {
		s.lost(gen, sessionError(ErrCodeTransport, fmt.Sprintf("join write: %v", err)))
	}
}

// readLoop consumes payloads until the transport fails or the attempt
// is superseded. One payload may batch several lines; they are handled
// strictly in order.
func (s *Session) readLoop(gen int, conn Conn) {
	for {
		s.mu.Lock()
		stale := s.stopped || gen != s.gen
		ctx := s.ctx
		s.mu.Unlock()
		if stale {
			return
		}

		payload, err := conn.Read(ctx)
		if err != nil {
			s.lost(gen, sessionError(ErrCodeTransport, fmt.Sprintf("read: %v", err)))
			return
		}
		for _, line := range strings.Split(payload, "\r\n") {
			if line == "" {
				continue
			}
			s.handleLine(gen, conn, line)
		}
	}
}

func (s *Session) handleLine(gen int, conn Conn, line string) {
	ev := irc.ParseLine(line, s.cfg.Room)
	switch ev.Kind {
	case irc.EventPing:
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if err := conn.Write(ctx, irc.FormatPong(ev.Text)); err != nil {
			s.log.Warn().Err(err).Msg("pong write failed")
		}
	case irc.EventWelcome:
		// Auth acknowledged; membership is still pending.
		s.log.Debug().Str("nick", ev.Nick).Msg("welcome received")
	case irc.EventNotice:
		if ev.AuthFailure {
			s.cfg.Metrics.AuthFailure()
			s.log.Warn().Str("notice", ev.Text).Msg("authentication rejected by server")
			s.lost(gen, sessionError(ErrCodeAuthFailure, ev.Text))
			return
		}
		s.log.Debug().Str("notice", ev.Text).Msg("server notice")
	case irc.EventJoinConfirmed:
		s.handleJoinConfirmed(gen, ev)
	case irc.EventChatMessage:
		s.deliver(*ev.Message)
	}
}

func (s *Session) handleJoinConfirmed(gen int, ev irc.Event) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if !strings.EqualFold(ev.User, s.nick) || !strings.EqualFold(ev.Room, s.cfg.Room) {
		s.mu.Unlock()
		return
	}
	if s.joinTimer != nil {
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
	s.attempts = 0
	s.lastErr = nil
	s.state = StateConnected
	s.armKeepAliveLocked(gen)
	s.mu.Unlock()

	s.log.Info().Msg("joined room")
	s.notify(StateConnected, nil)
}

// armKeepAliveLocked schedules the idle keep-alive probe. Inbound pings
// are answered separately; this probe covers peers that expect the
// client to speak first. Caller holds mu.
func (s *Session) armKeepAliveLocked(gen int) {
	s.keepAliveTimer = time.AfterFunc(s.cfg.KeepAliveInterval, func() {
		s.mu.Lock()
		if s.stopped || gen != s.gen || s.state != StateConnected || s.conn == nil {
			s.mu.Unlock()
			return
		}
		conn := s.conn
		ctx := s.ctx
		s.armKeepAliveLocked(gen)
		s.mu.Unlock()

		if err := conn.Write(ctx, irc.FormatPing()); err != nil {
			s.log.Warn().Err(err).Msg("keep-alive write failed")
		}
	})
}

// deliver hands a chat message to the collaborator callback. A panic in
// the callback is contained; it must not take down the read loop.
func (s *Session) deliver(msg irc.ChatMessage) {
	if s.cfg.OnMessage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("message handler panicked")
		}
	}()
	s.cfg.OnMessage(msg)
}

// lost folds any attempt failure (dial error, read error, auth-failure
// notice, join timeout) into the reconnect path. The generation bump
// invalidates the failed attempt's timers and read loop before the
// socket is closed.
func (s *Session) lost(gen int, cause error) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.cancelTimersLocked()
	conn := s.conn
	s.conn = nil
	s.lastErr = cause

	s.attempts++
	if s.attempts >= s.cfg.MaxAttempts {
		s.state = StateStopped
		s.stopped = true
		s.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrMaxAttempts, s.attempts, cause)
		err := s.lastErr
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		s.log.Error().Err(err).Str("code", ErrCodeMaxAttempts).Msg("giving up on reconnect")
		s.notify(StateStopped, err)
		return
	}

	s.cfg.Metrics.Reconnect(ErrorCode(cause))
	delay := backoffDelay(s.attempts, s.cfg.ReconnectBase, s.cfg.ReconnectMax)
	s.state = StateReconnecting
	nextGen := s.gen
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.connect(nextGen)
	})
	attempt := s.attempts
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.log.Warn().
		Err(cause).
		Str("code", ErrorCode(cause)).
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("connection lost, reconnecting")
	s.notify(StateReconnecting, cause)
}

// backoffDelay is min(base * 2^(attempt-1), max).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (s *Session) cancelTimersLocked() {
	for _, t := range []**time.Timer{&s.settleTimer, &s.joinTimer, &s.reconnectTimer, &s.keepAliveTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (s *Session) notify(state State, err error) {
	if s.cfg.OnStateChange == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("state handler panicked")
		}
	}()
	s.cfg.OnStateChange(state, err)
}
