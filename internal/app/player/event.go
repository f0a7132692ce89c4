package player

import "github.com/soundcrate/soundcrate/internal/domain/track"

// EventType represents a playback session event type.
type EventType int

const (
	EventTrackChanged  EventType = iota // Selected track changed
	EventStateChanged                   // Playing/paused flipped
	EventSeeked                         // Position changed by an explicit seek
	EventVolumeChanged                  // Volume changed
	EventQueueChanged                   // Queue contents changed
	EventQueueEmpty                     // Queue became empty
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventSeeked:
		return "seeked"
	case EventVolumeChanged:
		return "volume_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventQueueEmpty:
		return "queue_empty"
	default:
		return "unknown"
	}
}

// Event represents a playback session event.
type Event struct {
	Type     EventType
	Track    *track.QueuedTrack // Selected track (nil for some events)
	Index    int                // Current index at emission time
	Playing  bool               // Transport state at emission time
	Position float64            // Seek position (EventSeeked only)
	Volume   float64            // Volume (EventVolumeChanged only)
}
