// Package registry manages named chat sessions, one live session per
// key. Start and Stop are critical sections: replacing a session fully
// tears the old one down before the new one is installed, so two
// sockets can never fight over the same key.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/dispatch"
	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/metrics"
	"github.com/vovakirdan/chatlink/internal/session"
)

// ErrNotFound is returned for operations on a key with no session.
var ErrNotFound = errors.New("session not found")

// Config holds registry-wide settings shared by all sessions.
type Config struct {
	URL string
	// Transport is the default transport for new sessions; a
	// StartConfig transport takes precedence. Defaults to WebSocket.
	Transport         session.Transport
	JoinTimeout       time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxAttempts       int
	KeepAliveInterval time.Duration
	AuthSettleDelay   time.Duration
}

// StartConfig describes one session to start.
type StartConfig struct {
	Channel     string
	AccessToken string
	Username    string

	// ListenOnly skips the command dispatcher entirely.
	ListenOnly bool
	// Commands is the initial command list, used when CommandSource is
	// nil. CommandSource, when set, is consulted fresh per message so
	// live edits apply without a restart.
	Commands      []dispatch.Command
	CommandSource func() []dispatch.Command

	// OnMessage receives messages that were not dispatched as commands.
	OnMessage func(irc.ChatMessage)
	// OnStateChange observes the session lifecycle. Optional.
	OnStateChange func(state session.State, err error)

	// Transport overrides the WebSocket transport, for tests.
	Transport session.Transport
}

// Status is the externally visible session state.
type Status struct {
	IsRunning   bool
	IsConnected bool
	Channel     string
}

// Info is one row of the List snapshot.
type Info struct {
	Key         string
	Channel     string
	IsConnected bool
}

// Registry owns the key → session map. Never a package-level
// singleton; hosts construct their own so registries can coexist in
// tests.
type Registry struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New builds an empty registry.
func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		cfg:      cfg,
		log:      logger.With().Str("component", "registry").Logger(),
		metrics:  m,
		sessions: make(map[string]*session.Session),
	}
}

// Start creates and starts a session for key. An existing session for
// the same key is fully stopped first; its timers and handlers are
// inert before the replacement is installed.
func (r *Registry) Start(ctx context.Context, key string, cfg StartConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[key]; ok {
		old.Stop()
		delete(r.sessions, key)
		r.log.Info().Str("key", key).Msg("replaced existing session")
	}

	sess := session.New(r.sessionConfig(key, cfg), r.log)
	r.sessions[key] = sess
	r.metrics.SetActiveSessions(len(r.sessions))
	sess.Start(ctx)

	r.log.Info().Str("key", key).Str("channel", cfg.Channel).Bool("listen_only", cfg.ListenOnly).Msg("session started")
	return nil
}

func (r *Registry) sessionConfig(key string, cfg StartConfig) session.Config {
	if cfg.Transport == nil {
		cfg.Transport = r.cfg.Transport
	}
	sc := session.Config{
		URL:               r.cfg.URL,
		Room:              cfg.Channel,
		AccessToken:       cfg.AccessToken,
		Username:          cfg.Username,
		Transport:         cfg.Transport,
		Metrics:           r.metrics,
		OnStateChange:     cfg.OnStateChange,
		JoinTimeout:       r.cfg.JoinTimeout,
		ReconnectBase:     r.cfg.ReconnectBase,
		ReconnectMax:      r.cfg.ReconnectMax,
		MaxAttempts:       r.cfg.MaxAttempts,
		KeepAliveInterval: r.cfg.KeepAliveInterval,
		AuthSettleDelay:   r.cfg.AuthSettleDelay,
	}

	if cfg.ListenOnly {
		sc.OnMessage = cfg.OnMessage
		return sc
	}

	d := dispatch.New(r.log.With().Str("key", key).Logger())
	d.Metrics = r.metrics
	d.OnMessage = cfg.OnMessage
	d.GetCommands = cfg.CommandSource
	if d.GetCommands == nil {
		commands := cfg.Commands
		d.GetCommands = func() []dispatch.Command { return commands }
	}
	d.Send = func(text string) error {
		return r.Send(key, text)
	}
	sc.OnMessage = d.Handle
	return sc
}

// Stop tears down the session for key.
func (r *Registry) Stop(key string) error {
	r.mu.Lock()
	sess, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
		r.metrics.SetActiveSessions(len(r.sessions))
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	sess.Stop()
	return nil
}

// Status reports the session state for key without exposing internals.
func (r *Registry) Status(key string) (Status, error) {
	r.mu.Lock()
	sess, ok := r.sessions[key]
	r.mu.Unlock()

	if !ok {
		return Status{}, ErrNotFound
	}
	state, connected, _ := sess.Status()
	return Status{
		IsRunning:   state != session.StateStopped,
		IsConnected: connected,
		Channel:     sess.Room(),
	}, nil
}

// Send posts text to the session's room. Fails when the session is
// absent or not connected.
func (r *Registry) Send(key, text string) error {
	r.mu.Lock()
	sess, ok := r.sessions[key]
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return sess.Send(text)
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.sessions))
	for key, sess := range r.sessions {
		_, connected, _ := sess.Status()
		infos = append(infos, Info{Key: key, Channel: sess.Room(), IsConnected: connected})
	}
	return infos
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// StopAll tears down every session, for shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()

	for key, sess := range sessions {
		sess.Stop()
		r.log.Debug().Str("key", key).Msg("session stopped on shutdown")
	}
}
