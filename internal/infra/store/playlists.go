package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/domain/plan"
	"github.com/soundcrate/soundcrate/internal/domain/playlist"
)

// CreatePlaylist creates a playlist for the owner. The quota policy runs
// inside the transaction before the INSERT: a denial leaves the store
// untouched, there is no compensating rollback path.
func (s *Store) CreatePlaylist(ctx context.Context, ownerID, name, description string, public bool) (*playlist.Playlist, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	sub, err := s.getSubscriptionTx(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM playlists WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
		return nil, errors.Wrap(err, "failed to count playlists")
	}

	now := s.now()
	if err := plan.CanCreatePlaylist(sub, now, count); err != nil {
		zlog.Info().Msgf("store: playlist creation denied: owner=%s count=%d: %v", ownerID, count, err)
		return nil, err
	}

	p := &playlist.Playlist{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Public:      public,
		OwnerID:     ownerID,
		Tracks:      []playlist.PlaylistTrack{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO playlists (id, name, description, public, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, boolToInt(p.Public), p.OwnerID, p.CreatedAt, p.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "failed to insert playlist")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit playlist creation")
	}

	zlog.Debug().Msgf("store: created playlist: id=%s owner=%s name=%s", p.ID, ownerID, name)
	return p, nil
}

// GetPlaylist returns the playlist with its track references ordered by position.
func (s *Store) GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error) {
	var p playlist.Playlist
	var public int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, public, owner_id, created_at, updated_at
		 FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &public, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlist")
	}
	p.Public = public != 0

	rows, err := s.db.QueryContext(ctx,
		`SELECT track_id, position FROM playlist_tracks WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlist tracks")
	}
	defer rows.Close()

	p.Tracks = []playlist.PlaylistTrack{}
	for rows.Next() {
		var pt playlist.PlaylistTrack
		if err := rows.Scan(&pt.TrackID, &pt.Position); err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist track")
		}
		p.Tracks = append(p.Tracks, pt)
	}
	return &p, rows.Err()
}

// ListPlaylistsByOwner returns the owner's playlists, newest first.
// Track references are not populated.
func (s *Store) ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]playlist.Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, public, owner_id, created_at, updated_at
		 FROM playlists WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlists")
	}
	defer rows.Close()

	playlists := []playlist.Playlist{}
	for rows.Next() {
		var p playlist.Playlist
		var public int
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &public, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan playlist")
		}
		p.Public = public != 0
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// AppendTrack appends a track reference at the next dense position. The
// ownership check runs before any write. A UNIQUE constraint violation maps
// to ErrAlreadyInPlaylist so racing appends of the same track converge
// instead of duplicating.
func (s *Store) AppendTrack(ctx context.Context, ownerID, playlistID, trackID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkOwnershipTx(ctx, tx, playlistID, ownerID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO playlist_tracks (playlist_id, track_id, position)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM playlist_tracks WHERE playlist_id = ?))`,
		playlistID, trackID, playlistID)
	if isUniqueViolation(err) {
		return ErrAlreadyInPlaylist
	}
	if err != nil {
		return errors.Wrap(err, "failed to append track")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`, s.now(), playlistID); err != nil {
		return errors.Wrap(err, "failed to touch playlist")
	}

	return errors.Wrap(tx.Commit(), "failed to commit append")
}

// RemoveTrack removes a track reference and renumbers the remaining
// positions densely from 1.
func (s *Store) RemoveTrack(ctx context.Context, ownerID, playlistID, trackID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkOwnershipTx(ctx, tx, playlistID, ownerID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?`, playlistID, trackID)
	if err != nil {
		return errors.Wrap(err, "failed to remove track")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	// Reassign dense 1-based positions in the surviving order.
	if _, err := tx.ExecContext(ctx,
		`UPDATE playlist_tracks SET position = (
			SELECT COUNT(*) FROM playlist_tracks pt2
			WHERE pt2.playlist_id = playlist_tracks.playlist_id
			AND pt2.position <= playlist_tracks.position
		 ) WHERE playlist_id = ?`, playlistID); err != nil {
		return errors.Wrap(err, "failed to renumber positions")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`, s.now(), playlistID); err != nil {
		return errors.Wrap(err, "failed to touch playlist")
	}

	return errors.Wrap(tx.Commit(), "failed to commit removal")
}

// DeletePlaylist deletes the playlist and cascades its track references.
func (s *Store) DeletePlaylist(ctx context.Context, ownerID, playlistID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.checkOwnershipTx(ctx, tx, playlistID, ownerID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, playlistID); err != nil {
		return errors.Wrap(err, "failed to delete playlist")
	}

	return errors.Wrap(tx.Commit(), "failed to commit deletion")
}

// checkOwnershipTx verifies the playlist exists and belongs to ownerID.
func (s *Store) checkOwnershipTx(ctx context.Context, tx *sql.Tx, playlistID, ownerID string) error {
	var owner string
	err := tx.QueryRowContext(ctx,
		`SELECT owner_id FROM playlists WHERE id = ?`, playlistID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "failed to query playlist owner")
	}
	if owner != ownerID {
		return ErrUnauthorized
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
