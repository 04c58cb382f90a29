// Package irc implements the line protocol spoken by Twitch-style chat
// servers: pure parsing of inbound lines into typed events and formatting
// of outbound commands. No I/O, no state.
package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies what an inbound line means to the session.
type EventKind int

const (
	// EventUnrecognized covers every line the session does not act on,
	// including malformed input. Parsing never fails.
	EventUnrecognized EventKind = iota
	// EventPing is a keep-alive probe that must be answered with PONG.
	EventPing
	// EventWelcome is the numeric 001 acknowledgment after authentication.
	EventWelcome
	// EventNotice is a server notice; AuthFailure marks the known
	// credential-rejection phrases.
	EventNotice
	// EventJoinConfirmed confirms room membership for a user.
	EventJoinConfirmed
	// EventChatMessage is a message posted to the session's room.
	EventChatMessage
)

// Event is the parsed form of one inbound protocol line.
type Event struct {
	Kind        EventKind
	Nick        string // EventWelcome
	Text        string // EventNotice text, EventPing payload
	AuthFailure bool   // EventNotice only
	User        string // EventJoinConfirmed, lowercase
	Room        string // EventJoinConfirmed, lowercase, no '#'
	Message     *ChatMessage
}

// Phrases the server uses in NOTICE lines when credentials are rejected.
var authFailurePhrases = []string{
	"login authentication failed",
	"login unsuccessful",
	"improperly formatted auth",
	"invalid nick",
}

// ParseLine converts one raw protocol line into an Event. Messages
// targeting rooms other than roomKey are dropped (Unrecognized), as is
// anything malformed; this function never returns an error.
func ParseLine(line, roomKey string) Event {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Event{Kind: EventUnrecognized}
	}

	if strings.HasPrefix(line, "PING") {
		payload := ""
		if _, rest, ok := strings.Cut(line, ":"); ok {
			payload = rest
		}
		return Event{Kind: EventPing, Text: payload}
	}

	tags := map[string]string{}
	rest := line
	if strings.HasPrefix(rest, "@") {
		tagPart, remainder, ok := strings.Cut(rest[1:], " ")
		if !ok {
			return Event{Kind: EventUnrecognized}
		}
		tags = ParseTags(tagPart)
		rest = remainder
	}

	if !strings.HasPrefix(rest, ":") {
		return Event{Kind: EventUnrecognized}
	}
	prefix, remainder, ok := strings.Cut(rest[1:], " ")
	if !ok {
		return Event{Kind: EventUnrecognized}
	}

	command, params, _ := strings.Cut(remainder, " ")
	switch command {
	case "001":
		nick, _, _ := strings.Cut(params, " ")
		return Event{Kind: EventWelcome, Nick: nick}
	case "NOTICE":
		_, trailing, ok := strings.Cut(params, ":")
		if !ok {
			return Event{Kind: EventUnrecognized}
		}
		return Event{Kind: EventNotice, Text: trailing, AuthFailure: isAuthFailure(trailing)}
	case "JOIN":
		room := strings.TrimPrefix(strings.TrimSpace(params), "#")
		if room == "" {
			return Event{Kind: EventUnrecognized}
		}
		return Event{
			Kind: EventJoinConfirmed,
			User: strings.ToLower(prefixNick(prefix)),
			Room: strings.ToLower(room),
		}
	case "PRIVMSG":
		target, trailing, ok := strings.Cut(params, " :")
		if !ok {
			return Event{Kind: EventUnrecognized}
		}
		room := strings.TrimPrefix(target, "#")
		if !strings.EqualFold(room, roomKey) {
			return Event{Kind: EventUnrecognized}
		}
		msg := newChatMessage(tags, prefixNick(prefix), trailing, strings.ToLower(roomKey))
		return Event{Kind: EventChatMessage, Message: &msg}
	}

	return Event{Kind: EventUnrecognized}
}

func isAuthFailure(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range authFailurePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// prefixNick extracts "nick" from "nick!user@host" (or a bare nick).
func prefixNick(prefix string) string {
	nick, _, _ := strings.Cut(prefix, "!")
	return nick
}

func newChatMessage(tags map[string]string, nick, text, room string) ChatMessage {
	username := strings.ToLower(nick)

	display := tags["display-name"]
	if display == "" {
		display = username
	}

	ts := time.Now()
	if raw := tags["tmi-sent-ts"]; raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts = time.UnixMilli(ms)
		}
	}

	id := tags["id"]
	if id == "" {
		// Best-effort local identity when the server omits the tag.
		id = fmt.Sprintf("%d-%s", ts.UnixMilli(), uuid.NewString()[:8])
	}

	return ChatMessage{
		ID:          id,
		Username:    username,
		DisplayName: display,
		Text:        text,
		Color:       tags["color"],
		Room:        room,
		Timestamp:   ts,
	}
}

// Outbound line formatting. The transport appends CRLF.

func FormatPass(token string) string { return "PASS " + token }

func FormatNick(nick string) string { return "NICK " + nick }

// FormatCapReq requests the tag/command/membership capabilities the
// codec relies on for message metadata.
func FormatCapReq() string {
	return "CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"
}

func FormatJoin(room string) string {
	return "JOIN #" + strings.ToLower(room)
}

// FormatPrivMsg formats a message post to a room.
func FormatPrivMsg(room, text string) string {
	return fmt.Sprintf("PRIVMSG #%s :%s", strings.ToLower(room), text)
}

// FormatPing is the client-initiated keep-alive probe.
func FormatPing() string {
	return "PING :chatlink"
}

// FormatPong answers a PING. An empty payload falls back to the
// well-known server name.
func FormatPong(payload string) string {
	if payload == "" {
		payload = "tmi.twitch.tv"
	}
	return "PONG :" + payload
}
