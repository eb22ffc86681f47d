package scrobble

import "time"

// Default gaps used by ReconstructTimestamps when a track's duration is
// unknown. Release and setlist imports assume album-length pauses between
// tracks; friend-activity replay packs plays as tightly as the service
// allows.
const (
	DefaultReleaseGap = 3 * time.Minute
	DefaultReplayGap  = time.Second
)

// ReconstructTimestamps assigns a concrete played-at timestamp to every
// record of an ordered listing. The anchor is when the last track of the
// listing finished playing; walking backward, each earlier track is offset
// by the later track's duration, or by gap when the duration is unknown.
//
// The input order is listening order (index 0 played first). The returned
// slice is a copy; timestamps are strictly decreasing from the end of the
// listing toward its start.
func ReconstructTimestamps(records []Record, anchor time.Time, gap time.Duration) []Record {
	out := make([]Record, len(records))
	copy(out, records)

	t := anchor.UTC()
	for i := len(out) - 1; i >= 0; i-- {
		out[i].PlayedAt = t
		step := out[i].Duration
		if step <= 0 {
			step = gap
		}
		t = t.Add(-step)
	}
	return out
}

// RetimeFixed re-derives timestamps for an ordered listing using a fixed
// per-row step, ignoring both parsed timestamps and track durations. This
// is the import-mode re-timing: the last row lands on the anchor and every
// earlier row moves back by exactly gap.
func RetimeFixed(records []Record, anchor time.Time, gap time.Duration) []Record {
	out := make([]Record, len(records))
	copy(out, records)

	t := anchor.UTC()
	for i := len(out) - 1; i >= 0; i-- {
		out[i].PlayedAt = t
		t = t.Add(-gap)
	}
	return out
}
