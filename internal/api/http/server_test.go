package http

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundcrate/soundcrate/internal/app/player"
	"github.com/soundcrate/soundcrate/internal/app/restore"
	"github.com/soundcrate/soundcrate/internal/infra/catalog"
	"github.com/soundcrate/soundcrate/internal/infra/store"
)

type testServer struct {
	server  *Server
	session *player.Session
	store   *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newTestServerOver(t, st)
}

// newTestServerOver builds a server with its own session and restore
// controller on an existing database, as a process restart would.
func newTestServerOver(t *testing.T, st *store.Store) *testServer {
	t.Helper()

	session := player.NewSession(player.Config{
		Rand: rand.New(rand.NewSource(1)),
		Now:  func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(session.Close)

	resolver := catalog.NewLocalAccessor(catalog.LocalConfig{BaseURL: "http://localhost:9000/media"})
	restorer := restore.NewController(session, st, st, resolver)
	srv := NewServer(":0", session, st, resolver, restorer, "My Playlist")

	return &testServer{server: srv, session: session, store: st}
}

func (ts *testServer) do(t *testing.T, method, path, body, uid string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("X-User-ID", uid)
	}
	rec := httptest.NewRecorder()
	ts.server.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StateEmptyQueue(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/player/state", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(-1), body["current_index"])
	assert.Equal(t, false, body["playing"])
}

func TestServer_SaveTrackRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestServer_AddToQueueAnonymous(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "added", body["status"])
	assert.Empty(t, body["playlist_id"])

	rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_present", decodeBody(t, rec)["status"])

	// The resolved URL comes from the catalog accessor.
	state := decodeBody(t, ts.do(t, http.MethodGet, "/player/state", "", ""))
	queue := state["queue"].([]any)
	require.Len(t, queue, 1)
	entry := queue[0].(map[string]any)
	assert.Equal(t, "http://localhost:9000/media/t1.mp3", entry["resolved_url"])
}

func TestServer_AddToQueueAuthenticatedCreatesPlaylist(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "added", body["status"])
	playlistID := body["playlist_id"].(string)
	require.NotEmpty(t, playlistID)

	// The default playlist is now the collection target.
	rec = ts.do(t, http.MethodGet, "/playlists/"+playlistID, "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "My Playlist", decodeBody(t, rec)["name"])
}

func TestServer_QuotaDenialResponse(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/playlists", `{"name":"First"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/playlists", `{"name":"Second"}`, "u1")
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "quota_denied", body["code"])
	assert.Equal(t, "plan_limit", body["cause"])
	assert.Equal(t, "free", body["plan"])
}

func TestServer_UnknownTrack(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"absent"}`, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["code"])
}

func TestServer_RemoveFromQueueNotPresent(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodDelete, "/queue/tracks/absent", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PlaylistOwnershipOnDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/playlists", `{"name":"Mine"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["id"].(string)

	rec = ts.do(t, http.MethodDelete, "/playlists/"+id, "", "u2")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/playlists/"+id, "", "u1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_PrivatePlaylistHiddenFromOthers(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/playlists", `{"name":"Mine"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["id"].(string)

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/playlists/"+id, "", "u2").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/playlists/"+id, "", "u1").Code)
}

func TestServer_RestoreRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodPost, "/session/restore", "", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/restore", "", "u1").Code)
}

func TestServer_RestoreLoadsLastPlaylist(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	playlistID := decodeBody(t, rec)["playlist_id"].(string)

	// Loading records the playlist for the next session's restore.
	rec = ts.do(t, http.MethodPost, "/queue/load", `{"playlist_id":"`+playlistID+`"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	ts.session.Clear()

	rec = ts.do(t, http.MethodPost, "/session/restore", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, playlistID, body["active_playlist_id"])
	assert.Equal(t, false, body["playing"])
	require.Len(t, body["queue"].([]any), 1)
}

func TestServer_RestoreReselectsNowPlayingTrack(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ts := newTestServerOver(t, st)
	for _, id := range []string{"t1", "t2", "t3"} {
		rec := ts.do(t, http.MethodPost, "/tracks",
			`{"id":"`+id+`","title":"Song `+id+`","artist":"A","audio_key":"`+id+`.mp3"}`, "u1")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	playlistID := decodeBody(t, rec)["playlist_id"].(string)
	for _, id := range []string{"t2", "t3"} {
		rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"`+id+`"}`, "u1")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/queue/load", `{"playlist_id":"`+playlistID+`"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/player/play", `{"track_id":"t2"}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), decodeBody(t, rec)["current_index"])

	// A new process: fresh session and restore controller over the same DB.
	restarted := newTestServerOver(t, st)
	rec = restarted.do(t, http.MethodPost, "/session/restore", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, playlistID, body["active_playlist_id"])
	assert.Equal(t, float64(1), body["current_index"])
	assert.Equal(t, false, body["playing"])
}

func TestServer_VolumePersistedForAuthedUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/player/volume", `{"volume":0.4}`, "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	v, ok, err := ts.store.GetSetting(context.Background(), "u1", store.SettingVolume)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0.4", v)
}

func TestServer_SeekAndToggle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(t, http.MethodPost, "/queue/tracks", `{"track_id":"t1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, ts.do(t, http.MethodPost, "/player/toggle", "", ""))
	assert.Equal(t, false, body["playing"])

	body = decodeBody(t, ts.do(t, http.MethodPost, "/player/toggle", "", ""))
	assert.Equal(t, true, body["playing"])
}

func TestServer_PlayByTrackIDBumpsPlayCount(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/tracks", `{"id":"t1","title":"Song","artist":"A","audio_key":"t1.mp3"}`, "u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/player/play", `{"track_id":"t1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["playing"])

	got, err := ts.store.GetTrack(context.Background(), "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.PlayCount)
}
