// Package reconcile bridges "add this track" actions to either the in-memory
// queue (anonymous users) or a persisted playlist (authenticated users),
// keeping the live queue in sync when the affected playlist is the one
// currently loaded.
package reconcile

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/app/player"
	"github.com/soundcrate/soundcrate/internal/domain/playlist"
	"github.com/soundcrate/soundcrate/internal/domain/track"
	"github.com/soundcrate/soundcrate/internal/infra/store"
)

// PlaylistStore is the persisted playlist surface the reconciler needs.
type PlaylistStore interface {
	CreatePlaylist(ctx context.Context, ownerID, name, description string, public bool) (*playlist.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*playlist.Playlist, error)
	AppendTrack(ctx context.Context, ownerID, playlistID, trackID string) error
	ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]playlist.Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]track.Track, error)
}

// URLResolver resolves storage keys to playable/cover URLs.
type URLResolver interface {
	ResolvePlayableURL(ctx context.Context, storageKey string) (string, error)
	ResolveCoverURL(ctx context.Context, storageKey string) (string, bool)
}

// Outcome reports what an add action did.
type Outcome int

const (
	OutcomeAdded          Outcome = iota // Track added to the relevant collection
	OutcomeAlreadyPresent                // Informational no-op, never a duplicate
)

// Result is the outcome of an add action.
type Result struct {
	Outcome    Outcome
	PlaylistID string // Persisted playlist involved, "" on the local path
}

// QueueOwner is the capability selected once per session: local queue for
// anonymous users, persisted playlist for authenticated ones.
type QueueOwner interface {
	AddTrack(ctx context.Context, t track.Track) (Result, error)
}

// LocalQueueOwner adds straight to the in-memory queue.
type LocalQueueOwner struct {
	session  *player.Session
	resolver URLResolver
}

// NewLocalQueueOwner creates the anonymous-session capability.
func NewLocalQueueOwner(session *player.Session, resolver URLResolver) *LocalQueueOwner {
	return &LocalQueueOwner{session: session, resolver: resolver}
}

// AddTrack resolves URLs and appends to the queue. Duplicates re-target
// playback instead of inserting.
func (o *LocalQueueOwner) AddTrack(ctx context.Context, t track.Track) (Result, error) {
	if t.ID == "" {
		return Result{}, errors.New("track has no ID")
	}

	qt, err := resolveTrack(ctx, o.resolver, t)
	if err != nil {
		return Result{}, err
	}

	if o.session.AddToQueue(qt) == player.AddSelected {
		return Result{Outcome: OutcomeAlreadyPresent}, nil
	}
	return Result{Outcome: OutcomeAdded}, nil
}

// PersistedQueueOwner appends to a persisted playlist, creating the default
// playlist under quota when no target is set, and mirrors the refreshed
// playlist into the live queue when it is the one currently loaded.
type PersistedQueueOwner struct {
	session     *player.Session
	store       PlaylistStore
	resolver    URLResolver
	userID      string
	defaultName string
}

// NewPersistedQueueOwner creates the authenticated-session capability.
func NewPersistedQueueOwner(session *player.Session, store PlaylistStore, resolver URLResolver, userID, defaultName string) *PersistedQueueOwner {
	if defaultName == "" {
		defaultName = "My Playlist"
	}
	return &PersistedQueueOwner{
		session:     session,
		store:       store,
		resolver:    resolver,
		userID:      userID,
		defaultName: defaultName,
	}
}

// AddTrack appends the track server-side and then mirrors. The queue is only
// touched after server confirmation, and the mirror write is guarded by the
// generation captured before the remote calls: if the queue identity changed
// while the append was in flight, the stale refresh is discarded.
func (o *PersistedQueueOwner) AddTrack(ctx context.Context, t track.Track) (Result, error) {
	if t.ID == "" {
		return Result{}, errors.New("track has no ID")
	}

	targetID := o.session.TargetPlaylistID()
	if targetID == "" {
		p, err := o.getOrCreateDefault(ctx)
		if err != nil {
			return Result{}, err
		}
		targetID = p.ID
		o.session.SetTargetPlaylist(targetID)
	}

	generation := o.session.Generation()

	target, err := o.store.GetPlaylist(ctx, targetID)
	if err != nil {
		return Result{}, errors.Wrapf(err, "failed to load target playlist %s", targetID)
	}
	if target.Contains(t.ID) {
		return Result{Outcome: OutcomeAlreadyPresent, PlaylistID: targetID}, nil
	}

	if err := o.store.AppendTrack(ctx, o.userID, targetID, t.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyInPlaylist) {
			// Another writer won the append race; converge, don't duplicate.
			return Result{Outcome: OutcomeAlreadyPresent, PlaylistID: targetID}, nil
		}
		return Result{}, errors.Wrapf(err, "failed to append track to playlist %s", targetID)
	}

	if err := o.mirror(ctx, targetID, generation); err != nil {
		// The append committed; a failed refresh only delays visibility.
		zlog.Warn().Msgf("reconcile: mirror refresh failed: playlist=%s: %v", targetID, err)
	}

	return Result{Outcome: OutcomeAdded, PlaylistID: targetID}, nil
}

// getOrCreateDefault returns the user's most recent playlist, creating one
// subject to the quota policy when none exist.
func (o *PersistedQueueOwner) getOrCreateDefault(ctx context.Context) (*playlist.Playlist, error) {
	existing, err := o.store.ListPlaylistsByOwner(ctx, o.userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list playlists")
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	p, err := o.store.CreatePlaylist(ctx, o.userID, o.defaultName, "", false)
	if err != nil {
		// QuotaDeniedError passes through untouched so callers can branch on it.
		return nil, err
	}
	zlog.Info().Msgf("reconcile: created default playlist: id=%s owner=%s", p.ID, o.userID)
	return p, nil
}

// mirror refreshes the live queue from the playlist, only when it is the
// active one and only if the queue identity is unchanged since generation.
func (o *PersistedQueueOwner) mirror(ctx context.Context, playlistID string, generation uint64) error {
	if o.session.ActivePlaylistID() != playlistID {
		return nil
	}

	p, err := o.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	tracks, err := o.store.GetPlaylistTracks(ctx, playlistID)
	if err != nil {
		return err
	}

	queued := make([]track.QueuedTrack, 0, len(tracks))
	for _, t := range tracks {
		qt, err := resolveTrack(ctx, o.resolver, t)
		if err != nil {
			return err
		}
		queued = append(queued, qt)
	}

	startIndex := o.session.Snapshot().CurrentIndex
	if !o.session.LoadQueueIf(generation, p.ID, p.Name, queued, startIndex) {
		zlog.Debug().Msgf("reconcile: queue changed during append, stale mirror discarded: playlist=%s", playlistID)
	}
	return nil
}

func resolveTrack(ctx context.Context, resolver URLResolver, t track.Track) (track.QueuedTrack, error) {
	qt := track.QueuedTrack{Track: t}

	if t.HasAudio() {
		url, err := resolver.ResolvePlayableURL(ctx, t.AudioKey)
		if err != nil {
			return qt, errors.Wrapf(err, "failed to resolve audio URL for track %s", t.ID)
		}
		qt.ResolvedURL = url
	}
	if t.HasCover() {
		if url, ok := resolver.ResolveCoverURL(ctx, t.CoverKey); ok {
			qt.CoverURL = url
		}
	}
	return qt, nil
}
