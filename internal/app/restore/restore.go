// Package restore resolves which persisted playlist becomes the active queue
// on the first authenticated render of a session, exactly once per user.
package restore

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/app/player"
	"github.com/soundcrate/soundcrate/internal/domain/playlist"
	"github.com/soundcrate/soundcrate/internal/domain/track"
	"github.com/soundcrate/soundcrate/internal/infra/store"
)

// PlaylistStore is the persisted playlist surface restore needs.
type PlaylistStore interface {
	GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error)
	ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]playlist.Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error)
}

// Settings is the durable key/value surface for restore bookkeeping.
type Settings interface {
	GetSetting(ctx context.Context, userID, key string) (string, bool, error)
	PutSetting(ctx context.Context, userID, key, value string) error
	DeleteSetting(ctx context.Context, userID, key string) error
}

// URLResolver resolves storage keys to playable/cover URLs.
type URLResolver interface {
	ResolvePlayableURL(ctx context.Context, storageKey string) (string, error)
	ResolveCoverURL(ctx context.Context, storageKey string) (string, bool)
}

// Controller restores a user's last playback context into the session.
type Controller struct {
	mu   sync.Mutex
	done map[string]bool

	session   *player.Session
	playlists PlaylistStore
	settings  Settings
	resolver  URLResolver
}

// NewController creates a restore controller.
func NewController(session *player.Session, playlists PlaylistStore, settings Settings, resolver URLResolver) *Controller {
	return &Controller{
		done:      make(map[string]bool),
		session:   session,
		playlists: playlists,
		settings:  settings,
		resolver:  resolver,
	}
}

// Restore runs the restore flow for the user. It runs at most once per user
// for the lifetime of the process: the done flag is set on entry and never
// cleared, so repeated render cycles cause no duplicate fetches.
func (c *Controller) Restore(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.done[userID] {
		c.mu.Unlock()
		return nil
	}
	// Marked before the work, not after: restoration completes once
	// regardless of outcome, including failures and "no playlist found".
	c.done[userID] = true
	c.mu.Unlock()

	c.restoreTransportSettings(ctx, userID)

	p, err := c.pickPlaylist(ctx, userID)
	if err != nil {
		return err
	}
	if p == nil || len(p.Tracks) == 0 {
		zlog.Debug().Msgf("restore: nothing to restore: user=%s", userID)
		return nil
	}

	tracks, err := c.playlists.GetPlaylistTracks(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to load tracks of playlist %s", p.ID)
	}

	queued := make([]track.QueuedTrack, 0, len(tracks))
	for _, t := range tracks {
		qt := track.QueuedTrack{Track: t}
		if t.HasAudio() {
			url, err := c.resolver.ResolvePlayableURL(ctx, t.AudioKey)
			if err != nil {
				return errors.Wrapf(err, "failed to resolve audio URL for track %s", t.ID)
			}
			qt.ResolvedURL = url
		}
		if t.HasCover() {
			if url, ok := c.resolver.ResolveCoverURL(ctx, t.CoverKey); ok {
				qt.CoverURL = url
			}
		}
		queued = append(queued, qt)
	}

	startIndex := 0
	if trackID, ok, err := c.settings.GetSetting(ctx, userID, store.SettingRestoreTrackID); err == nil && ok {
		for i := range queued {
			if queued[i].Track.ID == trackID {
				startIndex = i
				break
			}
		}
	}

	// Load only: the queue and selection come back, playback does not start.
	c.session.LoadQueue(p.ID, p.Name, queued, startIndex)
	zlog.Info().Msgf("restore: restored queue: user=%s playlist=%s tracks=%d index=%d", userID, p.ID, len(queued), startIndex)
	return nil
}

// RememberPlaylist records the playlist to restore next session.
func (c *Controller) RememberPlaylist(ctx context.Context, userID, playlistID string) error {
	return c.settings.PutSetting(ctx, userID, store.SettingRestorePlaylistID, playlistID)
}

// RememberTrack records the now-playing track to reselect on restore.
func (c *Controller) RememberTrack(ctx context.Context, userID, trackID string) error {
	return c.settings.PutSetting(ctx, userID, store.SettingRestoreTrackID, trackID)
}

// pickPlaylist prefers the remembered playlist, discarding a stale memory of
// a deleted one, and falls back to the most recently created playlist.
func (c *Controller) pickPlaylist(ctx context.Context, userID string) (*playlist.Playlist, error) {
	remembered, ok, err := c.settings.GetSetting(ctx, userID, store.SettingRestorePlaylistID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read remembered playlist")
	}
	if ok && remembered != "" {
		p, err := c.playlists.GetPlaylist(ctx, remembered)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, errors.Wrapf(err, "failed to load remembered playlist %s", remembered)
		}
		// Remembered playlist vanished; forget it and fall through.
		zlog.Info().Msgf("restore: remembered playlist gone, falling back: user=%s playlist=%s", userID, remembered)
		if err := c.settings.DeleteSetting(ctx, userID, store.SettingRestorePlaylistID); err != nil {
			zlog.Warn().Msgf("restore: failed to forget playlist: %v", err)
		}
	}

	playlists, err := c.playlists.ListPlaylistsByOwner(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}
	if len(playlists) == 0 {
		return nil, nil
	}
	return c.playlists.GetPlaylist(ctx, playlists[0].ID)
}

// restoreTransportSettings applies remembered volume/loop/shuffle. Missing
// keys keep the session defaults.
func (c *Controller) restoreTransportSettings(ctx context.Context, userID string) {
	if v, ok, err := c.settings.GetSetting(ctx, userID, store.SettingVolume); err == nil && ok {
		if vol, err := strconv.ParseFloat(v, 64); err == nil {
			c.session.SetVolume(vol)
		}
	}

	snap := c.session.Snapshot()
	if v, ok, err := c.settings.GetSetting(ctx, userID, store.SettingLoop); err == nil && ok {
		if (v == "true") != snap.Looping {
			c.session.ToggleLoop()
		}
	}
	if v, ok, err := c.settings.GetSetting(ctx, userID, store.SettingShuffle); err == nil && ok {
		if (v == "true") != snap.Shuffling {
			c.session.ToggleShuffle()
		}
	}
}
