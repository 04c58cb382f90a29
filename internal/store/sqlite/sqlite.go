package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatlink/internal/dispatch"
	"github.com/vovakirdan/chatlink/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id           TEXT PRIMARY KEY,
	channel      TEXT NOT NULL,
	username     TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	autostart    INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS commands (
	profile_id       TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	"trigger"        TEXT NOT NULL,
	response         TEXT NOT NULL,
	enabled          INTEGER NOT NULL DEFAULT 1,
	cooldown_seconds INTEGER NOT NULL DEFAULT 0,
	position         INTEGER NOT NULL,
	PRIMARY KEY (profile_id, position)
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveProfile inserts or updates a profile by id.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p store.Profile) error {
	query := `
		INSERT INTO profiles (id, channel, username, access_token, autostart)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			username = excluded.username,
			access_token = excluded.access_token,
			autostart = excluded.autostart,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Channel, p.Username, p.AccessToken, boolToInt(p.Autostart))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// GetProfile fetches one profile by id.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	query := `
		SELECT id, channel, username, access_token, autostart, created_at, updated_at
		FROM profiles WHERE id = ?
	`
	var p store.Profile
	var autostart int
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Channel, &p.Username, &p.AccessToken, &autostart, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Autostart = autostart != 0
	return &p, nil
}

// ListProfiles returns every profile ordered by creation time.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]store.Profile, error) {
	query := `
		SELECT id, channel, username, access_token, autostart, created_at, updated_at
		FROM profiles ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []store.Profile
	for rows.Next() {
		var p store.Profile
		var autostart int
		if err := rows.Scan(&p.ID, &p.Channel, &p.Username, &p.AccessToken, &autostart, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.Autostart = autostart != 0
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes a profile and, via cascade, its commands.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if affected == 0 {
		return store.ErrProfileNotFound
	}
	return nil
}

// ReplaceCommands swaps the full command list of a profile in one
// transaction, preserving order.
func (s *SQLiteStore) ReplaceCommands(ctx context.Context, profileID string, commands []dispatch.Command) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM commands WHERE profile_id = ?`, profileID); err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	for i, cmd := range commands {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commands (profile_id, "trigger", response, enabled, cooldown_seconds, position)
			VALUES (?, ?, ?, ?, ?, ?)
		`, profileID, cmd.Trigger, cmd.Response, boolToInt(cmd.Enabled), cmd.CooldownSeconds, i)
		if err != nil {
			return fmt.Errorf("insert command: %w", err)
		}
	}
	return tx.Commit()
}

// ListCommands returns a profile's commands in their configured order.
func (s *SQLiteStore) ListCommands(ctx context.Context, profileID string) ([]dispatch.Command, error) {
	query := `
		SELECT "trigger", response, enabled, cooldown_seconds
		FROM commands WHERE profile_id = ? ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var commands []dispatch.Command
	for rows.Next() {
		var cmd dispatch.Command
		var enabled int
		if err := rows.Scan(&cmd.Trigger, &cmd.Response, &enabled, &cmd.CooldownSeconds); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmd.Enabled = enabled != 0
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
