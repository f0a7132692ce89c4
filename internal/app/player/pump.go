package player

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// Device is the opaque playback primitive boundary. The session issues
// commands and consumes events; it never inspects the device internals.
type Device interface {
	Load(url string)
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	Events() <-chan DeviceEvent
}

// DeviceEventType represents a playback device event type.
type DeviceEventType int

const (
	DeviceTimeUpdate     DeviceEventType = iota // Playback position advanced
	DeviceLoadedMetadata                        // Track metadata (duration) available
	DeviceEnded                                 // Current track finished
	DeviceError                                 // Playback failed
)

// DeviceEvent represents an event emitted by the playback device.
type DeviceEvent struct {
	Type     DeviceEventType
	Position float64 // Position in seconds (DeviceTimeUpdate)
	Duration float64 // Duration in seconds (DeviceLoadedMetadata)
	Err      error   // Failure cause (DeviceError)
}

// Bind pumps session events into device commands and device events back into
// session updates. It blocks until ctx is cancelled and is meant to run on its
// own goroutine, one per device.
func (s *Session) Bind(ctx context.Context, dev Device) {
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-s.Events():
			if !ok {
				return
			}
			s.applySessionEvent(dev, e)

		case de, ok := <-dev.Events():
			if !ok {
				return
			}
			s.applyDeviceEvent(de)
		}
	}
}

func (s *Session) applySessionEvent(dev Device, e Event) {
	switch e.Type {
	case EventTrackChanged:
		if e.Track == nil {
			return
		}
		dev.Load(e.Track.ResolvedURL)
		if e.Playing {
			dev.Play()
		}
	case EventStateChanged:
		if e.Playing {
			dev.Play()
		} else {
			dev.Pause()
		}
	case EventSeeked:
		dev.Seek(e.Position)
	case EventVolumeChanged:
		dev.SetVolume(e.Volume)
	case EventQueueEmpty:
		dev.Pause()
	}
}

func (s *Session) applyDeviceEvent(de DeviceEvent) {
	switch de.Type {
	case DeviceTimeUpdate:
		s.updateProgress(de.Position)
	case DeviceLoadedMetadata:
		s.updateDuration(de.Duration)
	case DeviceEnded:
		s.PlayNext()
	case DeviceError:
		zlog.Warn().Msgf("player: device error, pausing: %v", de.Err)
		s.pauseOnDeviceError()
	}
}

func (s *Session) pauseOnDeviceError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.playing = false
		s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentTrackLocked(), Index: s.currentIndex, Playing: false})
	}
}
