package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/soundcrate/soundcrate/internal/domain/track"
)

const trackColumns = `id, title, artist, album, genre, description, duration,
	audio_key, cover_key, play_count, download_count, owner_id, created_at, updated_at`

// SaveTrack inserts or updates a track. Updates are owner-gated: writing an
// existing track owned by someone else returns ErrUnauthorized.
func (s *Store) SaveTrack(ctx context.Context, t *track.Track) error {
	existing, err := s.GetTrack(ctx, t.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.OwnerID != t.OwnerID {
		return ErrUnauthorized
	}

	now := s.now()
	if existing == nil {
		t.CreatedAt = now
	} else {
		t.CreatedAt = existing.CreatedAt
	}
	t.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tracks (`+trackColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, album = excluded.album,
			genre = excluded.genre, description = excluded.description,
			duration = excluded.duration, audio_key = excluded.audio_key,
			cover_key = excluded.cover_key, updated_at = excluded.updated_at`,
		t.ID, t.Title, t.Artist, t.Album, t.Genre, t.Description, t.Duration,
		t.AudioKey, t.CoverKey, t.PlayCount, t.DownloadCount, t.OwnerID, t.CreatedAt, t.UpdatedAt)
	return errors.Wrap(err, "failed to save track")
}

// GetTrack returns the track with the given ID.
func (s *Store) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = ?`, id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query track")
	}
	return t, nil
}

// GetPlaylistTracks returns the full track rows of a playlist in position order.
// References to tracks that no longer exist are skipped.
func (s *Store) GetPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.artist, t.album, t.genre, t.description, t.duration,
			t.audio_key, t.cover_key, t.play_count, t.download_count, t.owner_id, t.created_at, t.updated_at
		 FROM playlist_tracks pt
		 JOIN tracks t ON t.id = pt.track_id
		 WHERE pt.playlist_id = ?
		 ORDER BY pt.position`, playlistID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query playlist tracks")
	}
	defer rows.Close()

	tracks := []track.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

// DeleteTrack deletes an owner's track and drops it from all playlists.
func (s *Store) DeleteTrack(ctx context.Context, ownerID, id string) error {
	t, err := s.GetTrack(ctx, id)
	if err != nil {
		return err
	}
	if t.OwnerID != ownerID {
		return ErrUnauthorized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_tracks WHERE track_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to remove playlist references")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete track")
	}
	return errors.Wrap(tx.Commit(), "failed to commit track deletion")
}

// IncrementPlayCount bumps the play counter.
func (s *Store) IncrementPlayCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET play_count = play_count + 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to increment play count")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloadCount bumps the download counter.
func (s *Store) IncrementDownloadCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracks SET download_count = download_count + 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to increment download count")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTracksByOwner returns the owner's tracks, newest first.
func (s *Store) ListTracksByOwner(ctx context.Context, ownerID string) ([]track.Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracks")
	}
	defer rows.Close()

	tracks := []track.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan track")
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*track.Track, error) {
	var t track.Track
	err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.Genre, &t.Description,
		&t.Duration, &t.AudioKey, &t.CoverKey, &t.PlayCount, &t.DownloadCount,
		&t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
