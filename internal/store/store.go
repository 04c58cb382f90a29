// Package store persists bot profiles and their command lists so a
// restarted control service can resume its sessions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/chatlink/internal/dispatch"
)

// ErrProfileNotFound is returned when a profile id is unknown.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the persisted configuration of one bot.
type Profile struct {
	ID          string
	Channel     string
	Username    string
	AccessToken string
	Autostart   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the persistence boundary. The command list doubles as the
// dispatcher's live source: ListCommands is read fresh per inbound
// message, so edits apply without a session restart.
type Store interface {
	SaveProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	DeleteProfile(ctx context.Context, id string) error

	ReplaceCommands(ctx context.Context, profileID string, commands []dispatch.Command) error
	ListCommands(ctx context.Context, profileID string) ([]dispatch.Command, error)

	Close() error
}
