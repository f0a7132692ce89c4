// Package catalog resolves track storage keys to time-limited playable URLs
// and cover image URLs.
package catalog

import "context"

// Accessor is the track catalog boundary. Pure request/response, no state
// beyond URL caching.
type Accessor interface {
	// ResolvePlayableURL resolves an audio storage key to a time-limited URL.
	ResolvePlayableURL(ctx context.Context, storageKey string) (string, error)
	// ResolveCoverURL resolves a cover storage key. The bool is false when the
	// key is empty or the cover cannot be resolved.
	ResolveCoverURL(ctx context.Context, storageKey string) (string, bool)
}
