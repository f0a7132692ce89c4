// Package device provides playback device implementations behind the
// player.Device boundary.
package device

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/app/player"
)

// ClockDevice simulates a playback device with a wall-clock ticker. It emits
// time-update events while playing and an ended event when the loaded
// duration elapses. Used by the server when no real audio sink is attached
// and by tests.
type ClockDevice struct {
	mu sync.Mutex

	url      string
	playing  bool
	position float64
	duration float64

	tick    time.Duration
	eventCh chan player.DeviceEvent
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewClockDevice creates a clock device. duration is reported for every
// loaded URL; tick controls the time-update cadence.
func NewClockDevice(duration float64, tick time.Duration) *ClockDevice {
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &ClockDevice{
		duration: duration,
		tick:     tick,
		eventCh:  make(chan player.DeviceEvent, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
	go d.run()
	return d
}

// Events returns the device event channel.
func (d *ClockDevice) Events() <-chan player.DeviceEvent {
	return d.eventCh
}

// Load loads a URL and resets the position.
func (d *ClockDevice) Load(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.position = 0
	d.send(player.DeviceEvent{Type: player.DeviceLoadedMetadata, Duration: d.duration})
}

// Play starts the clock.
func (d *ClockDevice) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
}

// Pause stops the clock.
func (d *ClockDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
}

// Seek moves the position.
func (d *ClockDevice) Seek(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	d.position = seconds
}

// SetVolume is a no-op; the clock has no audio path.
func (d *ClockDevice) SetVolume(v float64) {}

// Close stops the device.
func (d *ClockDevice) Close() {
	d.cancel()
}

func (d *ClockDevice) run() {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.advance()
		}
	}
}

func (d *ClockDevice) advance() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.playing || d.url == "" {
		return
	}
	d.position += d.tick.Seconds()

	if d.duration > 0 && d.position >= d.duration {
		d.playing = false
		d.position = d.duration
		zlog.Debug().Msgf("device: track ended: url=%s", d.url)
		d.send(player.DeviceEvent{Type: player.DeviceEnded})
		return
	}
	d.send(player.DeviceEvent{Type: player.DeviceTimeUpdate, Position: d.position})
}

// send delivers an event without blocking.
func (d *ClockDevice) send(e player.DeviceEvent) {
	select {
	case d.eventCh <- e:
	case <-d.ctx.Done():
	default:
	}
}
