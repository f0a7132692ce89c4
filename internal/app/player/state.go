// Package player provides the playback session state machine with an
// integrated queue.
package player

import "github.com/soundcrate/soundcrate/internal/domain/track"

// State is a consistent snapshot of the playback session.
type State struct {
	Queue              []track.QueuedTrack // Copy of the queue
	CurrentIndex       int                 // -1 when the queue is empty
	Playing            bool                // Transport running
	CurrentTime        float64             // Playback position in seconds
	Duration           float64             // Current track duration in seconds
	Volume             float64             // Volume in [0,1]
	Looping            bool                // Queue loop flag
	Shuffling          bool                // Shuffle flag
	ActivePlaylistID   string              // Persisted playlist mirrored by the queue ("" = local queue)
	ActivePlaylistName string              // Name of the active playlist
	TargetPlaylistID   string              // Playlist new adds are collected into ("" = none)
	Generation         uint64              // Queue identity generation
}

// Current returns the currently selected track, or nil if the queue is empty.
func (s *State) Current() *track.QueuedTrack {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Queue) {
		return nil
	}
	return &s.Queue[s.CurrentIndex]
}
