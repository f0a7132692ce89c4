package player

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/soundcrate/soundcrate/internal/domain/track"
)

// Shuffle weights by recency class.
const (
	weightNeverPlayed    = 3.0
	weightPlayedEarlier  = 2.0
	weightPlayedRecently = 0.3
)

// Rand is the random source used by the shuffle selector. Injecting it keeps
// selection deterministic under test.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// ShuffleSelector picks the next queue index using recency-weighted random
// selection: tracks never played this process lifetime are favoured, tracks
// played within the recency window are strongly penalised.
type ShuffleSelector struct {
	recencyWindow time.Duration
	rnd           Rand
}

// NewShuffleSelector creates a selector with the given recency window.
func NewShuffleSelector(recencyWindow time.Duration, rnd Rand) *ShuffleSelector {
	return &ShuffleSelector{
		recencyWindow: recencyWindow,
		rnd:           rnd,
	}
}

// Next returns the next index to play, excluding current. Queues shorter than
// two tracks return current unchanged.
func (s *ShuffleSelector) Next(queue []track.QueuedTrack, current int, now time.Time) int {
	if len(queue) < 2 {
		return current
	}

	type candidate struct {
		index  int
		weight float64
	}

	candidates := make([]candidate, 0, len(queue)-1)
	totalWeight := 0.0
	for i := range queue {
		if i == current {
			continue
		}
		w := s.weight(&queue[i], now)
		if w <= 0 {
			continue
		}
		candidates = append(candidates, candidate{index: i, weight: w})
		totalWeight += w
	}

	// All tracks recently played: fall back to uniform selection over the
	// queue excluding the current index.
	if len(candidates) == 0 {
		next := s.rnd.Intn(len(queue) - 1)
		if next >= current {
			next++
		}
		zlog.Debug().Msgf("shuffle: empty pool, uniform fallback: next=%d", next)
		return next
	}

	r := s.rnd.Float64() * totalWeight
	for _, c := range candidates {
		r -= c.weight
		if r <= 0 {
			return c.index
		}
	}
	// Floating-point drift can leave r marginally positive after the walk.
	return candidates[len(candidates)-1].index
}

// weight classifies a track by play recency.
func (s *ShuffleSelector) weight(qt *track.QueuedTrack, now time.Time) float64 {
	if qt.LastPlayedAt == nil {
		return weightNeverPlayed
	}
	if now.Sub(*qt.LastPlayedAt) > s.recencyWindow {
		return weightPlayedEarlier
	}
	return weightPlayedRecently
}
