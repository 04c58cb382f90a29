// Package dispatch matches inbound chat messages against configured
// command triggers and sends templated responses under per-trigger
// cooldowns. Used by bot sessions only; listen-only sessions skip it.
package dispatch

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink/internal/irc"
	"github.com/vovakirdan/chatlink/internal/metrics"
)

// Command is one configured trigger/response pair.
type Command struct {
	Trigger         string `json:"trigger"`
	Response        string `json:"response"`
	Enabled         bool   `json:"enabled"`
	CooldownSeconds int    `json:"cooldownSeconds,omitempty"`
}

// Dispatcher routes messages for one session. Commands are fetched
// fresh for every message, so edits take effect without a reconnect.
type Dispatcher struct {
	// GetCommands returns the current command list. Called once per
	// inbound message.
	GetCommands func() []Command
	// Send posts the formatted response to the room.
	Send func(text string) error
	// OnMessage receives every message that is not dispatched as a
	// command. Optional.
	OnMessage func(irc.ChatMessage)
	// OnCommand observes each successful dispatch. Optional.
	OnCommand func(cmd Command, msg irc.ChatMessage)
	// Now is the clock, overridable in tests.
	Now func() time.Time
	// Metrics counts dispatches and cooldown skips. Optional.
	Metrics *metrics.Metrics

	log     zerolog.Logger
	lastUse map[string]time.Time
}

// New builds a dispatcher with an empty cooldown ledger.
func New(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Now:     time.Now,
		log:     logger.With().Str("component", "dispatch").Logger(),
		lastUse: make(map[string]time.Time),
	}
}

// Handle processes one inbound message. Safe to use as a session
// OnMessage callback; message handling per session is sequential, so
// no locking is needed here.
func (d *Dispatcher) Handle(msg irc.ChatMessage) {
	if !strings.HasPrefix(msg.Text, "!") {
		d.forward(msg)
		return
	}

	trigger := strings.ToLower(strings.Fields(msg.Text)[0])

	var cmd *Command
	if d.GetCommands != nil {
		commands := d.GetCommands()
		for i := range commands {
			if commands[i].Enabled && commands[i].Trigger == trigger {
				cmd = &commands[i]
				break
			}
		}
	}
	if cmd == nil {
		// Unknown "commands" are just regular messages.
		d.forward(msg)
		return
	}

	now := d.Now()
	if cmd.CooldownSeconds > 0 {
		if last, ok := d.lastUse[trigger]; ok {
			cooldown := time.Duration(cmd.CooldownSeconds) * time.Second
			if now.Sub(last) < cooldown {
				d.log.Debug().
					Str("trigger", trigger).
					Str("user", msg.Username).
					Dur("remaining", cooldown-now.Sub(last)).
					Msg("command on cooldown, skipping")
				d.Metrics.CooldownSkip()
				return
			}
		}
	}
	d.lastUse[trigger] = now

	if d.OnCommand != nil {
		d.OnCommand(*cmd, msg)
	}

	response := strings.ReplaceAll(cmd.Response, "{user}", msg.DisplayName)
	response = strings.ReplaceAll(response, "{channel}", msg.Room)
	if d.Send == nil {
		return
	}
	if err := d.Send(response); err != nil {
		d.log.Warn().Err(err).Str("trigger", trigger).Msg("command response send failed")
		return
	}
	d.Metrics.CommandDispatched()
	d.log.Info().Str("trigger", trigger).Str("user", msg.Username).Msg("command dispatched")
}

func (d *Dispatcher) forward(msg irc.ChatMessage) {
	if d.OnMessage != nil {
		d.OnMessage(msg)
	}
}
