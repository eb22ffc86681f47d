// Package player provides the narrow adapter interface the playback
// monitor polls, and the concrete player adapters behind it. Source-specific
// quirks (double reads, vendor metadata parsing) live entirely inside the
// adapters.
package player

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// NowPlaying is a snapshot of what a player reports for the current track.
// The zero value means the player is silent.
type NowPlaying struct {
	ID          string        // Opaque source-specific identity (may be empty)
	Name        string        // Track name
	Artist      string        // Artist name
	Album       string        // Album name
	AlbumArtist string        // Album artist
	Duration    time.Duration // Track duration, 0 if unknown
	Playing     bool          // Whether the player is actively advancing
}

// Empty reports whether the player is silent.
func (np NowPlaying) Empty() bool {
	return np.Name == "" && np.Artist == ""
}

// SameTrack reports whether two snapshots refer to the same track identity.
// The opaque ID wins when both sides carry one.
func (np NowPlaying) SameTrack(other NowPlaying) bool {
	if np.ID != "" && other.ID != "" {
		return np.ID == other.ID
	}
	return np.Name == other.Name && np.Artist == other.Artist && np.Album == other.Album
}

// Source is the player adapter contract the monitor is written against.
type Source interface {
	// Name returns the adapter name (used in config and status text).
	Name() string
	// Connect acquires a connection to the external player.
	Connect(ctx context.Context) error
	// Disconnect releases the connection. Idempotent.
	Disconnect() error
	// CurrentTrack queries the player's current track. A zero NowPlaying
	// means the player is silent; an error means the player went away.
	CurrentTrack(ctx context.Context) (NowPlaying, error)
}

// registry holds registered source factories, keyed by adapter name.
var registry = make(map[string]func(settings map[string]any) (Source, error))

// Register registers a source factory.
func Register(name string, factory func(settings map[string]any) (Source, error)) {
	registry[name] = factory
}

// New creates a source by adapter name with the given settings.
func New(name string, settings map[string]any) (Source, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Newf("unknown player source %q", name)
	}
	return factory(settings)
}

// Registered returns the names of all registered adapters.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
