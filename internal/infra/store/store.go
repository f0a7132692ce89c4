// Package store provides SQLite-backed persistence for playlists, tracks,
// subscriptions, and per-user settings.
package store

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Errors
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("ownership mismatch")
	ErrAlreadyInPlaylist = errors.New("track already in playlist")
)

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	artist         TEXT NOT NULL,
	album          TEXT NOT NULL DEFAULT '',
	genre          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	duration       INTEGER NOT NULL DEFAULT 0,
	audio_key      TEXT NOT NULL DEFAULT '',
	cover_key      TEXT NOT NULL DEFAULT '',
	play_count     INTEGER NOT NULL DEFAULT 0,
	download_count INTEGER NOT NULL DEFAULT 0,
	owner_id       TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS playlists (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	public      INTEGER NOT NULL DEFAULT 0,
	owner_id    TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
	playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	track_id    TEXT NOT NULL,
	position    INTEGER NOT NULL,
	UNIQUE (playlist_id, track_id)
);

CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks (playlist_id, position);
CREATE INDEX IF NOT EXISTS idx_playlists_owner ON playlists (owner_id, created_at);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id    TEXT PRIMARY KEY,
	plan       TEXT NOT NULL,
	status     TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	user_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
`

// Open opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
