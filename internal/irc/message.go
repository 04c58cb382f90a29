package irc

import "time"

// ChatMessage is the domain model for a chat message received from a room.
// Immutable once constructed.
type ChatMessage struct {
	ID          string
	Username    string // always lowercase
	DisplayName string
	Text        string
	Color       string
	Room        string
	Timestamp   time.Time
}
