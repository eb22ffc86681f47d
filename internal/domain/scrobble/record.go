// Package scrobble provides the scrobble domain entities: listen records,
// ordered batches and timestamp reconstruction for sources that only carry
// a relative listening order.
package scrobble

import (
	"time"

	"github.com/cockroachdb/errors"
)

// MaxScrobbleAge is the service-side submission age limit. Records older
// than this are rejected by the tracking service and are therefore not
// eligible for submission in normal mode.
const MaxScrobbleAge = 14 * 24 * time.Hour

// Record represents a single "this track was listened to" event.
type Record struct {
	Artist      string        // Artist name, never empty
	Track       string        // Track name, never empty
	Album       string        // Album name (optional)
	AlbumArtist string        // Album artist (optional)
	Duration    time.Duration // Track duration, 0 if unknown
	PlayedAt    time.Time     // When the track was played (UTC)
}

// NewRecord creates a validated Record. The played-at timestamp is
// normalized to UTC.
func NewRecord(artist, trackName string, playedAt time.Time) (Record, error) {
	r := Record{
		Artist:   artist,
		Track:    trackName,
		PlayedAt: playedAt.UTC(),
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Artist == "" {
		return errors.New("artist name is required")
	}
	if r.Track == "" {
		return errors.New("track name is required")
	}
	if r.Duration < 0 {
		return errors.Newf("track duration must be non-negative, got %v", r.Duration)
	}
	return nil
}

// WithPlayedAt returns a copy of the record with the given timestamp,
// normalized to UTC.
func (r Record) WithPlayedAt(t time.Time) Record {
	r.PlayedAt = t.UTC()
	return r
}
