// Package playlist provides the Playlist domain entity.
package playlist

import "time"

// PlaylistTrack represents a track reference inside a playlist.
// Positions are dense 1-based integers, reassigned on reorder.
type PlaylistTrack struct {
	TrackID  string `json:"track_id"` // Referenced track UUID
	Position int    `json:"position"` // 1-based position within the playlist
}

// Playlist represents a named, owned, ordered collection of track references.
type Playlist struct {
	ID          string          `json:"id"`                    // Playlist UUID
	Name        string          `json:"name"`                  // Playlist name
	Description string          `json:"description,omitempty"` // Playlist description
	Public      bool            `json:"public"`                // Publicly visible
	OwnerID     string          `json:"owner_id"`              // Owning user ID
	Tracks      []PlaylistTrack `json:"tracks"`                // Ordered track references
	CreatedAt   time.Time       `json:"created_at"`            // Creation time
	UpdatedAt   time.Time       `json:"updated_at"`            // Last update time
}

// Contains reports whether the playlist references the given track.
func (p *Playlist) Contains(trackID string) bool {
	return p.IndexOf(trackID) >= 0
}

// IndexOf returns the zero-based index of the track reference, or -1.
func (p *Playlist) IndexOf(trackID string) int {
	for i, pt := range p.Tracks {
		if pt.TrackID == trackID {
			return i
		}
	}
	return -1
}

// TrackIDs returns all track IDs in playlist order.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, pt := range p.Tracks {
		ids[i] = pt.TrackID
	}
	return ids
}

// NextPosition returns the position a newly appended track should take.
func (p *Playlist) NextPosition() int {
	return len(p.Tracks) + 1
}

// Renumber reassigns dense 1-based positions in slice order.
func (p *Playlist) Renumber() {
	for i := range p.Tracks {
		p.Tracks[i].Position = i + 1
	}
}

// Remove drops the track reference and renumbers the remainder.
// Returns false if the track was not present.
func (p *Playlist) Remove(trackID string) bool {
	i := p.IndexOf(trackID)
	if i < 0 {
		return false
	}
	p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
	p.Renumber()
	return true
}
