// Package track provides the Track domain entity.
package track

import "time"

// Track represents an owner-uploaded audio track.
// Mutable only through owner-initiated updates.
type Track struct {
	ID            string    `json:"id"`                    // Track UUID
	Title         string    `json:"title"`                 // Track title
	Artist        string    `json:"artist"`                // Artist name
	Album         string    `json:"album,omitempty"`       // Album name (optional)
	Genre         string    `json:"genre,omitempty"`       // Genre (optional)
	Description   string    `json:"description,omitempty"` // Free-form description (optional)
	Duration      int       `json:"duration"`              // Duration in seconds (0 if unknown)
	AudioKey      string    `json:"audio_key,omitempty"`   // Object storage key for the audio bytes (optional)
	CoverKey      string    `json:"cover_key,omitempty"`   // Object storage key for the cover image (optional)
	PlayCount     int64     `json:"play_count"`            // Times the track was played
	DownloadCount int64     `json:"download_count"`        // Times the track was downloaded
	OwnerID       string    `json:"owner_id"`              // Owning user ID
	CreatedAt     time.Time `json:"created_at"`            // Creation time
	UpdatedAt     time.Time `json:"updated_at"`            // Last update time
}

// QueuedTrack represents a track in the playback queue.
// The resolved URLs are time-limited and the last-played stamp lives only
// for the process lifetime; none of these fields are persisted.
type QueuedTrack struct {
	Track        Track      // Catalog track info
	ResolvedURL  string     // Time-limited playable URL
	CoverURL     string     // Resolved cover image URL (empty if no cover)
	LastPlayedAt *time.Time // Last time this entry played, nil if never
}

// HasAudio reports whether the track has uploaded audio bytes.
func (t *Track) HasAudio() bool {
	return t.AudioKey != ""
}

// HasCover reports whether the track has a cover image.
func (t *Track) HasCover() bool {
	return t.CoverKey != ""
}

// MarkPlayed stamps the last-played time.
func (q *QueuedTrack) MarkPlayed(now time.Time) {
	t := now
	q.LastPlayedAt = &t
}

// PlayedWithin reports whether the entry played within d of now.
func (q *QueuedTrack) PlayedWithin(d time.Duration, now time.Time) bool {
	if q.LastPlayedAt == nil {
		return false
	}
	return now.Sub(*q.LastPlayedAt) <= d
}
