// Package http provides the HTTP control surface over the playback session
// and its workflows.
package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/app/player"
	"github.com/soundcrate/soundcrate/internal/app/reconcile"
	"github.com/soundcrate/soundcrate/internal/app/restore"
	"github.com/soundcrate/soundcrate/internal/domain/plan"
	"github.com/soundcrate/soundcrate/internal/domain/track"
	"github.com/soundcrate/soundcrate/internal/infra/catalog"
	"github.com/soundcrate/soundcrate/internal/infra/store"
)

// Server wires the gin router to the app services.
type Server struct {
	session             *player.Session
	store               *store.Store
	resolver            catalog.Accessor
	restorer            *restore.Controller
	metrics             *Metrics
	defaultPlaylistName string

	srv *http.Server
}

// NewServer creates the HTTP control surface.
func NewServer(addr string, session *player.Session, st *store.Store, resolver catalog.Accessor, restorer *restore.Controller, defaultPlaylistName string) *Server {
	registry := prometheus.NewRegistry()
	s := &Server{
		session:             session,
		store:               st,
		resolver:            resolver,
		restorer:            restorer,
		metrics:             NewMetrics(registry),
		defaultPlaylistName: defaultPlaylistName,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	p := router.Group("/player")
	{
		p.GET("/state", s.handleState)
		p.POST("/play", s.handlePlay)
		p.POST("/toggle", s.handleToggle)
		p.POST("/next", s.handleNext)
		p.POST("/previous", s.handlePrevious)
		p.POST("/seek", s.handleSeek)
		p.POST("/volume", s.handleVolume)
		p.POST("/loop", s.handleLoop)
		p.POST("/shuffle", s.handleShuffle)
	}

	q := router.Group("/queue")
	{
		q.POST("/tracks", s.handleAddToQueue)
		q.DELETE("/tracks/:id", s.handleRemoveFromQueue)
		q.POST("/load", s.handleLoadQueue)
		q.POST("/clear", s.handleClearQueue)
		q.POST("/target", s.handleSetTarget)
	}

	router.POST("/session/restore", s.handleRestore)

	pl := router.Group("/playlists")
	{
		pl.GET("", s.handleListPlaylists)
		pl.POST("", s.handleCreatePlaylist)
		pl.GET("/:id", s.handleGetPlaylist)
		pl.DELETE("/:id", s.handleDeletePlaylist)
		pl.DELETE("/:id/tracks/:trackId", s.handleRemovePlaylistTrack)
	}

	t := router.Group("/tracks")
	{
		t.GET("", s.handleListTracks)
		t.POST("", s.handleSaveTrack)
		t.GET("/:id", s.handleGetTrack)
		t.DELETE("/:id", s.handleDeleteTrack)
	}

	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	zlog.Info().Msgf("http: listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// userID returns the authenticated user, or "" for anonymous requests. The
// auth provider terminates upstream; this surface only consumes its identity.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// queueOwner selects the capability variant for the request's auth state.
func (s *Server) queueOwner(c *gin.Context) reconcile.QueueOwner {
	uid := userID(c)
	if uid == "" {
		return reconcile.NewLocalQueueOwner(s.session, s.resolver)
	}
	return reconcile.NewPersistedQueueOwner(s.session, s.store, s.resolver, uid, s.defaultPlaylistName)
}

type stateTrack struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	ResolvedURL  string `json:"resolved_url,omitempty"`
	CoverURL     string `json:"cover_url,omitempty"`
	LastPlayedAt string `json:"last_played_at,omitempty"`
}

func (s *Server) handleState(c *gin.Context) {
	snap := s.session.Snapshot()
	s.metrics.QueueLength.Set(float64(len(snap.Queue)))

	queue := make([]stateTrack, len(snap.Queue))
	for i, qt := range snap.Queue {
		queue[i] = stateTrack{
			ID:          qt.Track.ID,
			Title:       qt.Track.Title,
			Artist:      qt.Track.Artist,
			Album:       qt.Track.Album,
			Duration:    qt.Track.Duration,
			ResolvedURL: qt.ResolvedURL,
			CoverURL:    qt.CoverURL,
		}
		if qt.LastPlayedAt != nil {
			queue[i].LastPlayedAt = qt.LastPlayedAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":                queue,
		"current_index":        snap.CurrentIndex,
		"playing":              snap.Playing,
		"current_time":         snap.CurrentTime,
		"duration":             snap.Duration,
		"volume":               snap.Volume,
		"looping":              snap.Looping,
		"shuffling":            snap.Shuffling,
		"active_playlist_id":   snap.ActivePlaylistID,
		"active_playlist_name": snap.ActivePlaylistName,
		"target_playlist_id":   snap.TargetPlaylistID,
	})
}

type playRequest struct {
	TrackID string `json:"track_id"`
	Index   *int   `json:"index"`
}

func (s *Server) handlePlay(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch {
	case req.Index != nil:
		s.session.PlayAt(*req.Index)
	case req.TrackID != "":
		t, err := s.store.GetTrack(c.Request.Context(), req.TrackID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		qt := track.QueuedTrack{Track: *t}
		if t.HasAudio() {
			url, err := s.resolver.ResolvePlayableURL(c.Request.Context(), t.AudioKey)
			if err != nil {
				s.respondError(c, err)
				return
			}
			qt.ResolvedURL = url
		}
		if t.HasCover() {
			if url, ok := s.resolver.ResolveCoverURL(c.Request.Context(), t.CoverKey); ok {
				qt.CoverURL = url
			}
		}
		s.session.PlaySong(qt)
		if err := s.store.IncrementPlayCount(c.Request.Context(), t.ID); err != nil {
			zlog.Warn().Msgf("http: failed to bump play count: track=%s: %v", t.ID, err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "track_id or index required"})
		return
	}

	s.metrics.PlaysTotal.Inc()
	s.rememberNowPlaying(c)
	s.handleState(c)
}

func (s *Server) handleToggle(c *gin.Context) {
	s.session.TogglePlay()
	s.handleState(c)
}

func (s *Server) handleNext(c *gin.Context) {
	s.session.PlayNext()
	s.rememberNowPlaying(c)
	s.handleState(c)
}

func (s *Server) handlePrevious(c *gin.Context) {
	s.session.PlayPrevious()
	s.rememberNowPlaying(c)
	s.handleState(c)
}

// rememberNowPlaying records the current track for the user so the next
// session's restore reselects it.
func (s *Server) rememberNowPlaying(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		return
	}
	snap := s.session.Snapshot()
	cur := snap.Current()
	if cur == nil {
		return
	}
	if err := s.restorer.RememberTrack(c.Request.Context(), uid, cur.Track.ID); err != nil {
		zlog.Warn().Msgf("http: failed to remember track: %v", err)
	}
}

func (s *Server) handleSeek(c *gin.Context) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.session.Seek(req.Seconds)
	s.handleState(c)
}

func (s *Server) handleVolume(c *gin.Context) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.session.SetVolume(req.Volume)

	if uid := userID(c); uid != "" {
		v := strconv.FormatFloat(s.session.Snapshot().Volume, 'f', -1, 64)
		if err := s.store.PutSetting(c.Request.Context(), uid, store.SettingVolume, v); err != nil {
			zlog.Warn().Msgf("http: failed to persist volume: %v", err)
		}
	}
	s.handleState(c)
}

func (s *Server) handleLoop(c *gin.Context) {
	s.session.ToggleLoop()
	s.persistFlag(c, store.SettingLoop, s.session.Snapshot().Looping)
	s.handleState(c)
}

func (s *Server) handleShuffle(c *gin.Context) {
	s.session.ToggleShuffle()
	s.persistFlag(c, store.SettingShuffle, s.session.Snapshot().Shuffling)
	s.handleState(c)
}

func (s *Server) persistFlag(c *gin.Context, key string, value bool) {
	uid := userID(c)
	if uid == "" {
		return
	}
	if err := s.store.PutSetting(c.Request.Context(), uid, key, strconv.FormatBool(value)); err != nil {
		zlog.Warn().Msgf("http: failed to persist %s: %v", key, err)
	}
}

func (s *Server) handleAddToQueue(c *gin.Context) {
	var req struct {
		TrackID string `json:"track_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track_id required"})
		return
	}

	t, err := s.store.GetTrack(c.Request.Context(), req.TrackID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	owner := s.queueOwner(c)
	ownerLabel := "local"
	if userID(c) != "" {
		ownerLabel = "persisted"
	}

	result, err := owner.AddTrack(c.Request.Context(), *t)
	if err != nil {
		s.metrics.QueueAddsTotal.WithLabelValues(ownerLabel, "error").Inc()
		s.respondError(c, err)
		return
	}

	status := "added"
	if result.Outcome == reconcile.OutcomeAlreadyPresent {
		status = "already_present"
		s.metrics.DuplicatesTotal.Inc()
	}
	s.metrics.QueueAddsTotal.WithLabelValues(ownerLabel, status).Inc()

	c.JSON(http.StatusOK, gin.H{"status": status, "playlist_id": result.PlaylistID})
}

func (s *Server) handleRemoveFromQueue(c *gin.Context) {
	if !s.session.RemoveFromQueue(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "track not in queue"})
		return
	}
	s.handleState(c)
}

func (s *Server) handleLoadQueue(c *gin.Context) {
	var req struct {
		PlaylistID string `json:"playlist_id" binding:"required"`
		StartIndex int    `json:"start_index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist_id required"})
		return
	}

	ctx := c.Request.Context()
	p, err := s.store.GetPlaylist(ctx, req.PlaylistID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	tracks, err := s.store.GetPlaylistTracks(ctx, p.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	queued := make([]track.QueuedTrack, 0, len(tracks))
	for _, t := range tracks {
		qt := track.QueuedTrack{Track: t}
		if t.HasAudio() {
			url, err := s.resolver.ResolvePlayableURL(ctx, t.AudioKey)
			if err != nil {
				s.respondError(c, err)
				return
			}
			qt.ResolvedURL = url
		}
		if t.HasCover() {
			if url, ok := s.resolver.ResolveCoverURL(ctx, t.CoverKey); ok {
				qt.CoverURL = url
			}
		}
		queued = append(queued, qt)
	}

	s.session.LoadQueue(p.ID, p.Name, queued, req.StartIndex)

	if uid := userID(c); uid != "" {
		if err := s.restorer.RememberPlaylist(ctx, uid, p.ID); err != nil {
			zlog.Warn().Msgf("http: failed to remember playlist: %v", err)
		}
	}
	s.handleState(c)
}

func (s *Server) handleClearQueue(c *gin.Context) {
	s.session.Clear()
	s.handleState(c)
}

func (s *Server) handleSetTarget(c *gin.Context) {
	var req struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s.session.SetTargetPlaylist(req.PlaylistID)
	s.handleState(c)
}

func (s *Server) handleRestore(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	s.metrics.RestoresTotal.Inc()
	if err := s.restorer.Restore(c.Request.Context(), uid); err != nil {
		s.respondError(c, err)
		return
	}
	s.handleState(c)
}

func (s *Server) handleListPlaylists(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	playlists, err := s.store.ListPlaylistsByOwner(c.Request.Context(), uid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, playlists)
}

func (s *Server) handleCreatePlaylist(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Public      bool   `json:"public"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	p, err := s.store.CreatePlaylist(c.Request.Context(), uid, req.Name, req.Description, req.Public)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetPlaylist(c *gin.Context) {
	p, err := s.store.GetPlaylist(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !p.Public && p.OwnerID != userID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePlaylist(c *gin.Context) {
	if err := s.store.DeletePlaylist(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRemovePlaylistTrack(c *gin.Context) {
	err := s.store.RemoveTrack(c.Request.Context(), userID(c), c.Param("id"), c.Param("trackId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTracks(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	tracks, err := s.store.ListTracksByOwner(c.Request.Context(), uid)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracks)
}

func (s *Server) handleSaveTrack(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var t track.Track
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track body"})
		return
	}
	if t.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track id required"})
		return
	}
	t.OwnerID = uid

	if err := s.store.SaveTrack(c.Request.Context(), &t); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleGetTrack(c *gin.Context) {
	t, err := s.store.GetTrack(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTrack(c *gin.Context) {
	if err := s.store.DeleteTrack(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError translates the error taxonomy into stable response codes the
// view layer can branch on. Quota denials carry the plan and cause so the UI
// can offer an upgrade path distinct from a generic failure.
func (s *Server) respondError(c *gin.Context, err error) {
	var quotaErr *plan.QuotaDeniedError
	switch {
	case errors.As(err, &quotaErr):
		s.metrics.QuotaDenialsTotal.Inc()
		c.JSON(http.StatusForbidden, gin.H{
			"error": quotaErr.Error(),
			"code":  "quota_denied",
			"cause": string(quotaErr.Cause),
			"plan":  string(quotaErr.Plan),
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "not_found"})
	case errors.Is(err, store.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "ownership mismatch", "code": "unauthorized"})
	default:
		zlog.Error().Msgf("http: request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
	}
}
