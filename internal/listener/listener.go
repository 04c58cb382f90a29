// Package listener is the in-process, listen-only deployment of the
// session engine: one room, no command dispatcher, no auth layer. It
// keeps a bounded ring of the most recent messages for the embedding
// renderer to observe.
package listener

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/registry"
	"github.com/vovakirdan/chatlink/internal/session"
)

const defaultBufferSize = 200

// Options configures a listen-only client.
type Options struct {
	Room        string
	AccessToken string
	Username    string
	// OnMessage is invoked for every message, after the ring buffer
	// records it. Optional.
	OnMessage func(irc.ChatMessage)
	// BufferSize bounds the retained message ring. Defaults to 200.
	BufferSize int
	// Transport overrides the WebSocket transport, for tests.
	Transport session.Transport
}

// Client wraps a single listen-only session.
type Client struct {
	reg  *registry.Registry
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
	buf     []irc.ChatMessage
	next    int
	filled  bool
	lastErr error
	conn    bool
}

// New builds a client on top of the given registry. The registry is
// shared with the host so its config (endpoint URL, timings) applies.
func New(reg *registry.Registry, opts Options, logger zerolog.Logger) *Client {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &Client{
		reg:  reg,
		opts: opts,
		log:  logger.With().Str("component", "listener").Str("room", opts.Room).Logger(),
		buf:  make([]irc.ChatMessage, opts.BufferSize),
	}
}

// Start begins listening. Restarting an already-running client
// replaces its session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.lastErr = nil
	c.mu.Unlock()

	return c.reg.Start(ctx, c.key(), registry.StartConfig{
		Channel:       c.opts.Room,
		AccessToken:   c.opts.AccessToken,
		Username:      c.opts.Username,
		ListenOnly:    true,
		Transport:     c.opts.Transport,
		OnMessage:     c.record,
		OnStateChange: c.observe,
	})
}

// Stop tears the session down. Safe to call when not running.
func (c *Client) Stop() {
	c.mu.Lock()
	c.running = false
	c.conn = false
	c.mu.Unlock()
	_ = c.reg.Stop(c.key())
}

// SendMessage posts to the room; fails when not connected.
func (c *Client) SendMessage(text string) error {
	return c.reg.Send(c.key(), text)
}

// IsRunning reports whether Start has been called without a matching
// Stop.
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// IsConnected reports live connectivity.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Err returns the most recent session error, nil while healthy.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Messages returns the retained messages, oldest first.
func (c *Client) Messages() []irc.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.filled {
		out := make([]irc.ChatMessage, c.next)
		copy(out, c.buf[:c.next])
		return out
	}
	out := make([]irc.ChatMessage, 0, len(c.buf))
	out = append(out, c.buf[c.next:]...)
	out = append(out, c.buf[:c.next]...)
	return out
}

func (c *Client) key() string { return "listener:" + c.opts.Room }

func (c *Client) record(msg irc.ChatMessage) {
	c.mu.Lock()
	c.buf[c.next] = msg
	c.next++
	if c.next == len(c.buf) {
		c.next = 0
		c.filled = true
	}
	c.mu.Unlock()

	if c.opts.OnMessage != nil {
		c.opts.OnMessage(msg)
	}
}

func (c *Client) observe(state session.State, err error) {
	c.mu.Lock()
	c.conn = state == session.StateConnected
	if err != nil {
		c.lastErr = err
	} else if state == session.StateConnected {
		c.lastErr = nil
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("state", state.String()).Msg("session state changed")
	} else {
		c.log.Debug().Str("state", state.String()).Msg("session state changed")
	}
}
