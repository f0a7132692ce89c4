package player

import (
	"context"
	"math/rand"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/domain/track"
)

// AddResult reports what AddToQueue did.
type AddResult int

const (
	AddInserted AddResult = iota // Track appended to the queue
	AddSelected                  // Track already queued; playback re-targeted to it
)

// Config holds session configuration.
type Config struct {
	EventBufferSize int           // Buffered event channel size
	RecencyWindow   time.Duration // Shuffle recency window
	DefaultVolume   float64       // Initial volume
	Rand            Rand          // Random source for shuffle (nil = time-seeded)
	Now             func() time.Time
}

// Session is the single authoritative in-memory playback queue and transport.
// All mutation goes through the exported operations so the index invariant
// (-1 <= currentIndex < len(queue), -1 iff empty) holds after every call.
type Session struct {
	mu sync.RWMutex

	queue        []track.QueuedTrack
	currentIndex int

	playing     bool
	currentTime float64
	duration    float64
	volume      float64
	looping     bool
	shuffling   bool

	activePlaylistID   string
	activePlaylistName string
	targetPlaylistID   string

	// generation changes whenever the queue identity changes (LoadQueue/Clear).
	// Async mirror writes capture it at call time and check it at write time.
	generation uint64

	shuffle *ShuffleSelector
	now     func() time.Time

	eventCh chan Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSession creates a new playback session with an empty queue.
func NewSession(config Config) *Session {
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 16
	}
	if config.RecencyWindow <= 0 {
		config.RecencyWindow = 10 * time.Minute
	}
	if config.DefaultVolume <= 0 || config.DefaultVolume > 1 {
		config.DefaultVolume = 1
	}
	rnd := config.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	nowFn := config.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		queue:        make([]track.QueuedTrack, 0),
		currentIndex: -1,
		volume:       config.DefaultVolume,
		shuffle:      NewShuffleSelector(config.RecencyWindow, rnd),
		now:          nowFn,
		eventCh:      make(chan Event, config.EventBufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Events returns the event channel.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// Close releases session resources. The session is not usable afterwards.
// The event channel is left open: receivers exit on context cancellation,
// and sends after Close are dropped, so a device event drained concurrently
// with Close can never hit a closed channel.
func (s *Session) Close() {
	s.cancel()
}

// PlaySong selects the given track and starts playback. If the track is not
// in the queue it is appended first.
func (s *Session) PlaySong(qt track.QueuedTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(qt.Track.ID)
	if i < 0 {
		s.queue = append(s.queue, qt)
		i = len(s.queue) - 1
		s.sendEventLocked(Event{Type: EventQueueChanged, Index: s.currentIndex, Playing: s.playing})
	}
	s.selectLocked(i, true)
}

// PlayAt selects the queue entry at index and starts playback.
// Out-of-range indexes are ignored.
func (s *Session) PlayAt(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.queue) {
		return
	}
	s.selectLocked(index, true)
}

// AddToQueue appends the track. The operation is idempotent per track ID: if
// an entry with the same ID exists, playback is re-targeted to it instead of
// inserting a duplicate. Appending the first track starts playback.
func (s *Session) AddToQueue(qt track.QueuedTrack) AddResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOfLocked(qt.Track.ID); i >= 0 {
		if i != s.currentIndex {
			s.selectLocked(i, s.playing)
		}
		return AddSelected
	}

	s.queue = append(s.queue, qt)
	s.sendEventLocked(Event{Type: EventQueueChanged, Index: s.currentIndex, Playing: s.playing})
	if len(s.queue) == 1 {
		s.selectLocked(0, true)
	}
	return AddInserted
}

// RemoveFromQueue removes the entry with the given track ID. If it was the
// current entry, the replacement is the track now occupying the same index,
// else the previous index, else none (empty queue stops and resets transport).
func (s *Session) RemoveFromQueue(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(trackID)
	if i < 0 {
		return false
	}

	s.queue = append(s.queue[:i], s.queue[i+1:]...)

	switch {
	case len(s.queue) == 0:
		s.currentIndex = -1
		s.playing = false
		s.currentTime = 0
		s.duration = 0
		s.sendEventLocked(Event{Type: EventQueueEmpty, Index: -1})
	case i < s.currentIndex:
		// A track before the current one slid out; the current track moved up.
		s.currentIndex--
	case i == s.currentIndex:
		next := i
		if next >= len(s.queue) {
			next = i - 1
		}
		s.selectLocked(next, s.playing)
	}

	s.sendEventLocked(Event{Type: EventQueueChanged, Index: s.currentIndex, Playing: s.playing})
	return true
}

// PlayNext advances to the next track. With shuffle on, selection is
// recency-weighted. With shuffle off, advancing past the tail wraps when loop
// is on and stops (index unchanged) when loop is off.
func (s *Session) PlayNext() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}

	if s.shuffling {
		next := s.shuffle.Next(s.queue, s.currentIndex, s.now())
		s.queue[next].MarkPlayed(s.now())
		s.selectLocked(next, s.playing)
		return
	}

	next := s.currentIndex + 1
	if next >= len(s.queue) {
		if !s.looping {
			if s.playing {
				s.playing = false
				s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentTrackLocked(), Index: s.currentIndex, Playing: false})
			}
			return
		}
		next = 0
	}
	s.selectLocked(next, s.playing)
}

// PlayPrevious steps back one track. It always wraps at the head, independent
// of the loop flag. The next/previous asymmetry is deliberate: backing up past
// the first track should land on the last one even when the queue does not loop.
func (s *Session) PlayPrevious() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}
	prev := (s.currentIndex - 1 + len(s.queue)) % len(s.queue)
	s.selectLocked(prev, s.playing)
}

// TogglePlay flips the transport between playing and paused.
func (s *Session) TogglePlay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}
	s.playing = !s.playing
	s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentTrackLocked(), Index: s.currentIndex, Playing: s.playing})
}

// Seek moves the playback position, clamped to [0, duration].
func (s *Session) Seek(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}
	s.currentTime = seconds
	s.sendEventLocked(Event{Type: EventSeeked, Track: s.currentTrackLocked(), Index: s.currentIndex, Playing: s.playing, Position: seconds})
}

// SetVolume sets the volume, clamped to [0,1].
func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.volume = v
	s.sendEventLocked(Event{Type: EventVolumeChanged, Index: s.currentIndex, Playing: s.playing, Volume: v})
}

// ToggleLoop flips the queue loop flag.
func (s *Session) ToggleLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.looping = !s.looping
}

// ToggleShuffle flips the shuffle flag.
func (s *Session) ToggleShuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuffling = !s.shuffling
}

// LoadQueue replaces the queue wholesale with the contents of a persisted
// playlist. startIndex is used when in range, otherwise 0. Playback does not
// auto-start: loading a playlist and playing it are distinct actions.
func (s *Session) LoadQueue(playlistID, name string, tracks []track.QueuedTrack, startIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadQueueLocked(playlistID, name, tracks, startIndex)
}

// LoadQueueIf applies LoadQueue only when the queue identity is still at the
// given generation. It returns false when the queue changed in the meantime,
// in which case the (stale) load is discarded. This is the staleness guard for
// async mirror refreshes.
func (s *Session) LoadQueueIf(generation uint64, playlistID, name string, tracks []track.QueuedTrack, startIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		zlog.Debug().Msgf("player: discarding stale queue load: playlist=%s generation=%d current=%d", playlistID, generation, s.generation)
		return false
	}
	s.loadQueueLocked(playlistID, name, tracks, startIndex)
	return true
}

func (s *Session) loadQueueLocked(playlistID, name string, tracks []track.QueuedTrack, startIndex int) {
	prevTrackID := ""
	if cur := s.currentTrackLocked(); cur != nil {
		prevTrackID = cur.Track.ID
	}

	// Play stamps live for the process lifetime; keep them across a reload so
	// shuffle weighting survives a mirror refresh of the same playlist.
	stamps := make(map[string]*time.Time, len(s.queue))
	for i := range s.queue {
		if s.queue[i].LastPlayedAt != nil {
			stamps[s.queue[i].Track.ID] = s.queue[i].LastPlayedAt
		}
	}

	s.queue = make([]track.QueuedTrack, len(tracks))
	copy(s.queue, tracks)
	for i := range s.queue {
		if s.queue[i].LastPlayedAt == nil {
			s.queue[i].LastPlayedAt = stamps[s.queue[i].Track.ID]
		}
	}

	s.activePlaylistID = playlistID
	s.activePlaylistName = name
	s.generation++

	if len(s.queue) == 0 {
		s.currentIndex = -1
		s.playing = false
		s.currentTime = 0
		s.duration = 0
		s.sendEventLocked(Event{Type: EventQueueEmpty, Index: -1})
		return
	}
	if startIndex < 0 || startIndex >= len(s.queue) {
		startIndex = 0
	}
	s.currentIndex = startIndex

	// Loading never auto-starts playback. When the same track keeps the
	// selection across a reload the transport runs on undisturbed; any other
	// load parks the transport at the head of the selected track.
	if s.queue[startIndex].Track.ID != prevTrackID {
		s.playing = false
		s.currentTime = 0
		s.duration = 0
		s.sendEventLocked(Event{Type: EventTrackChanged, Track: s.currentTrackLocked(), Index: s.currentIndex})
	}
	s.sendEventLocked(Event{Type: EventQueueChanged, Index: s.currentIndex, Playing: s.playing})
}

// Clear empties the queue and resets the transport and active playlist
// identity. The target playlist is preserved: clearing what is playing does
// not change where new adds are collected.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = make([]track.QueuedTrack, 0)
	s.currentIndex = -1
	s.playing = false
	s.currentTime = 0
	s.duration = 0
	s.activePlaylistID = ""
	s.activePlaylistName = ""
	s.generation++
	s.sendEventLocked(Event{Type: EventQueueEmpty, Index: -1})
}

// SetTargetPlaylist sets the playlist new adds should be appended to.
func (s *Session) SetTargetPlaylist(playlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetPlaylistID = playlistID
}

// SetCurrentIndex moves the selection without starting playback.
// Out-of-range indexes are ignored.
func (s *Session) SetCurrentIndex(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.queue) {
		return
	}
	s.currentIndex = index
	s.sendEventLocked(Event{Type: EventTrackChanged, Track: s.currentTrackLocked(), Index: index, Playing: s.playing})
}

// Generation returns the current queue identity generation.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ActivePlaylistID returns the ID of the mirrored playlist, or "".
func (s *Session) ActivePlaylistID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePlaylistID
}

// TargetPlaylistID returns the playlist new adds are collected into, or "".
func (s *Session) TargetPlaylistID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetPlaylistID
}

// Contains reports whether a track with the given ID is queued.
func (s *Session) Contains(trackID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOfLocked(trackID) >= 0
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queue := make([]track.QueuedTrack, len(s.queue))
	copy(queue, s.queue)
	return State{
		Queue:              queue,
		CurrentIndex:       s.currentIndex,
		Playing:            s.playing,
		CurrentTime:        s.currentTime,
		Duration:           s.duration,
		Volume:             s.volume,
		Looping:            s.looping,
		Shuffling:          s.shuffling,
		ActivePlaylistID:   s.activePlaylistID,
		ActivePlaylistName: s.activePlaylistName,
		TargetPlaylistID:   s.targetPlaylistID,
		Generation:         s.generation,
	}
}

// updateProgress records playback progress reported by the device.
func (s *Session) updateProgress(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex >= 0 {
		s.currentTime = position
	}
}

// updateDuration records the track duration reported by the device.
func (s *Session) updateDuration(duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex >= 0 && duration > 0 {
		s.duration = duration
	}
}

// selectLocked moves the selection to index, resets the position, stamps the
// last-played time when playback starts, and emits events.
// Must be called with lock held and a valid index.
func (s *Session) selectLocked(index int, playing bool) {
	s.currentIndex = index
	s.currentTime = 0
	s.duration = 0
	if playing {
		s.queue[index].MarkPlayed(s.now())
	}
	stateChanged := s.playing != playing
	s.playing = playing

	s.sendEventLocked(Event{Type: EventTrackChanged, Track: s.currentTrackLocked(), Index: index, Playing: playing})
	if stateChanged {
		s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentTrackLocked(), Index: index, Playing: playing})
	}
}

func (s *Session) indexOfLocked(trackID string) int {
	for i, qt := range s.queue {
		if qt.Track.ID == trackID {
			return i
		}
	}
	return -1
}

// currentTrackLocked returns a copy of the current track for event payloads.
func (s *Session) currentTrackLocked() *track.QueuedTrack {
	if s.currentIndex < 0 || s.currentIndex >= len(s.queue) {
		return nil
	}
	qt := s.queue[s.currentIndex]
	return &qt
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) sendEventLocked(e Event) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.eventCh <- e:
	default:
		// Channel full, drop event
	}
}
