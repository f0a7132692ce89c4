package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundcrate/soundcrate/internal/domain/plan"
	"github.com/soundcrate/soundcrate/internal/domain/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func proSubscription(userID string) *plan.Subscription {
	return &plan.Subscription{
		UserID:    userID,
		Plan:      plan.PlanPro,
		Status:    plan.StatusActive,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
}

func sampleTrack(id, ownerID string) *track.Track {
	return &track.Track{
		ID:       id,
		Title:    "Title " + id,
		Artist:   "Artist",
		Duration: 180,
		AudioKey: id + ".mp3",
		OwnerID:  ownerID,
	}
}

func TestStore_TrackRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("t1", "u1")))

	got, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Title t1", got.Title)
	assert.Equal(t, "u1", got.OwnerID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetTrack(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveTrackOwnerGated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("t1", "u1")))

	err := s.SaveTrack(ctx, sampleTrack("t1", "u2"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	// The rightful owner can update.
	upd := sampleTrack("t1", "u1")
	upd.Title = "Renamed"
	require.NoError(t, s.SaveTrack(ctx, upd))

	got, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}

func TestStore_IncrementCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("t1", "u1")))
	require.NoError(t, s.IncrementPlayCount(ctx, "t1"))
	require.NoError(t, s.IncrementPlayCount(ctx, "t1"))
	require.NoError(t, s.IncrementDownloadCount(ctx, "t1"))

	got, err := s.GetTrack(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.PlayCount)
	assert.EqualValues(t, 1, got.DownloadCount)

	assert.ErrorIs(t, s.IncrementPlayCount(ctx, "missing"), ErrNotFound)
}

func TestStore_CreatePlaylistFreeQuota(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No subscription row: free plan, one playlist allowed.
	p, err := s.CreatePlaylist(ctx, "u1", "First", "", false)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	_, err = s.CreatePlaylist(ctx, "u1", "Second", "", false)
	require.Error(t, err)

	var qerr *plan.QuotaDeniedError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, plan.DenyPlanLimit, qerr.Cause)
	assert.Equal(t, plan.PlanFree, qerr.Plan)
	assert.Equal(t, 1, qerr.Limit)

	// The denial left the store unchanged.
	lists, err := s.ListPlaylistsByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestStore_CreatePlaylistInactiveSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSubscription(ctx, &plan.Subscription{
		UserID:    "u1",
		Plan:      plan.PlanPro,
		Status:    plan.StatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	_, err := s.CreatePlaylist(ctx, "u1", "First", "", false)
	require.Error(t, err)

	var qerr *plan.QuotaDeniedError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, plan.DenySubscriptionInactive, qerr.Cause)
}

func TestStore_CreatePlaylistProIsUnlimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSubscription(ctx, proSubscription("u1")))
	for i := 0; i < 10; i++ {
		_, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
		require.NoError(t, err)
	}
}

func TestStore_AppendTrackPositionsAndUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
	require.NoError(t, err)
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "u1")))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("b", "u1")))

	require.NoError(t, s.AppendTrack(ctx, "u1", p.ID, "a"))
	require.NoError(t, s.AppendTrack(ctx, "u1", p.ID, "b"))

	// The second insert of the same track surfaces as ErrAlreadyInPlaylist,
	// which is how racing appends from two tabs converge.
	assert.ErrorIs(t, s.AppendTrack(ctx, "u1", p.ID, "a"), ErrAlreadyInPlaylist)

	got, err := s.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, 1, got.Tracks[0].Position)
	assert.Equal(t, "a", got.Tracks[0].TrackID)
	assert.Equal(t, 2, got.Tracks[1].Position)
}

func TestStore_AppendTrackOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
	require.NoError(t, err)

	assert.ErrorIs(t, s.AppendTrack(ctx, "intruder", p.ID, "a"), ErrUnauthorized)
	assert.ErrorIs(t, s.AppendTrack(ctx, "u1", "missing", "a"), ErrNotFound)
}

func TestStore_RemoveTrackRenumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveTrack(ctx, sampleTrack(id, "u1")))
		require.NoError(t, s.AppendTrack(ctx, "u1", p.ID, id))
	}

	require.NoError(t, s.RemoveTrack(ctx, "u1", p.ID, "b"))

	got, err := s.GetPlaylist(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Tracks, 2)
	assert.Equal(t, "a", got.Tracks[0].TrackID)
	assert.Equal(t, 1, got.Tracks[0].Position)
	assert.Equal(t, "c", got.Tracks[1].TrackID)
	assert.Equal(t, 2, got.Tracks[1].Position)

	assert.ErrorIs(t, s.RemoveTrack(ctx, "u1", p.ID, "b"), ErrNotFound)
}

func TestStore_GetPlaylistTracksSkipsDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.SaveTrack(ctx, sampleTrack(id, "u1")))
		require.NoError(t, s.AppendTrack(ctx, "u1", p.ID, id))
	}

	require.NoError(t, s.DeleteTrack(ctx, "u1", "a"))

	tracks, err := s.GetPlaylistTracks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "b", tracks[0].ID)
}

func TestStore_DeletePlaylistCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePlaylist(ctx, "u1", "List", "", false)
	require.NoError(t, err)
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "u1")))
	require.NoError(t, s.AppendTrack(ctx, "u1", p.ID, "a"))

	assert.ErrorIs(t, s.DeletePlaylist(ctx, "intruder", p.ID), ErrUnauthorized)
	require.NoError(t, s.DeletePlaylist(ctx, "u1", p.ID))

	_, err = s.GetPlaylist(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The track itself survives, only the reference is gone.
	_, err = s.GetTrack(ctx, "a")
	assert.NoError(t, err)
}

func TestStore_ListPlaylistsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSubscription(ctx, proSubscription("u1")))
	first, err := s.CreatePlaylist(ctx, "u1", "First", "", false)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.CreatePlaylist(ctx, "u1", "Second", "", false)
	require.NoError(t, err)

	lists, err := s.ListPlaylistsByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, second.ID, lists[0].ID)
	assert.Equal(t, first.ID, lists[1].ID)
}

func TestStore_SubscriptionDefaultsToFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.GetSubscription(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, plan.PlanFree, sub.Plan)
	assert.True(t, sub.IsActive(time.Now()))

	require.NoError(t, s.PutSubscription(ctx, proSubscription("u1")))
	sub, err = s.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, plan.PlanPro, sub.Plan)
}

func TestStore_SettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "u1", SettingVolume)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutSetting(ctx, "u1", SettingVolume, "0.8"))
	require.NoError(t, s.PutSetting(ctx, "u1", SettingVolume, "0.5"))

	v, ok, err := s.GetSetting(ctx, "u1", SettingVolume)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.5", v)

	// Scoped per user.
	_, ok, err = s.GetSetting(ctx, "u2", SettingVolume)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeleteSetting(ctx, "u1", SettingVolume))
	_, ok, err = s.GetSetting(ctx, "u1", SettingVolume)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListTracksByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrack(ctx, sampleTrack("a", "u1")))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("b", "u1")))
	require.NoError(t, s.SaveTrack(ctx, sampleTrack("c", "u2")))

	tracks, err := s.ListTracksByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
}
