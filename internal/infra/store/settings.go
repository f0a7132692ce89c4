package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Well-known settings keys for session-restore bookkeeping.
const (
	SettingRestorePlaylistID = "restore.playlist_id"
	SettingRestoreTrackID    = "restore.track_id"
	SettingVolume            = "player.volume"
	SettingLoop              = "player.loop"
	SettingShuffle           = "player.shuffle"
)

// GetSetting returns the value for a per-user key. A missing key is a valid
// state (fresh install) and reported via the bool, not an error.
func (s *Store) GetSetting(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to query setting")
	}
	return value, true, nil
}

// PutSetting writes a per-user key.
func (s *Store) PutSetting(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	return errors.Wrap(err, "failed to save setting")
}

// DeleteSetting removes a per-user key. Deleting a missing key is a no-op.
func (s *Store) DeleteSetting(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE user_id = ? AND key = ?`, userID, key)
	return errors.Wrap(err, "failed to delete setting")
}
