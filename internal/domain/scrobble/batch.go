package scrobble

import "time"

// Mode controls how a batch derives its timestamps.
type Mode int

const (
	// ModeNormal uses each record's own parsed or fetched timestamp,
	// subject to the service's submission age limit.
	ModeNormal Mode = iota
	// ModeImport ignores parsed timestamps and synthesizes them backward
	// from a user-chosen anchor with a fixed per-row gap. Age limits are
	// waived.
	ModeImport
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeImport:
		return "import"
	default:
		return "unknown"
	}
}

// Entry is a batch row: a record plus the user's inclusion choice.
type Entry struct {
	Record   Record
	Included bool // User opted this row in
}

// Batch is an ordered sequence of scrobble entries produced by an importer
// or a monitor. Mode switches re-derive timestamps but never touch the
// identity fields of the underlying records.
type Batch struct {
	entries []Entry
	parsed  []time.Time // original timestamps, restored when leaving import mode
	mode    Mode
}

// NewBatch creates a batch in normal mode with every record included.
// The original timestamps are retained so import mode can be reverted.
func NewBatch(records []Record) *Batch {
	entries := make([]Entry, len(records))
	parsed := make([]time.Time, len(records))
	for i, r := range records {
		entries[i] = Entry{Record: r, Included: true}
		parsed[i] = r.PlayedAt
	}
	return &Batch{entries: entries, parsed: parsed, mode: ModeNormal}
}

// Len returns the number of entries in the batch.
func (b *Batch) Len() int {
	return len(b.entries)
}

// Mode returns the current batch mode.
func (b *Batch) Mode() Mode {
	return b.mode
}

// Entries returns a copy of the batch entries in listening order.
func (b *Batch) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// SetIncluded sets the inclusion flag of the entry at index i.
// Out-of-range indexes are ignored.
func (b *Batch) SetIncluded(i int, included bool) {
	if i < 0 || i >= len(b.entries) {
		return
	}
	b.entries[i].Included = included
}

// SetImportMode switches the batch to import mode, re-deriving every
// timestamp backward from anchor with a fixed per-row gap. Any per-row
// timestamp edits are lost, which is why callers confirm before switching.
func (b *Batch) SetImportMode(anchor time.Time, gap time.Duration) {
	records := make([]Record, len(b.entries))
	for i, e := range b.entries {
		records[i] = e.Record
	}
	for i, r := range RetimeFixed(records, anchor, gap) {
		b.entries[i].Record = r
	}
	b.mode = ModeImport
}

// SetNormalMode switches the batch back to normal mode, restoring the
// originally parsed timestamps.
func (b *Batch) SetNormalMode() {
	for i := range b.entries {
		b.entries[i].Record.PlayedAt = b.parsed[i]
	}
	b.mode = ModeNormal
}

// Eligible reports whether the entry at index i may be submitted at the
// given time. Import mode waives the age limit.
func (b *Batch) Eligible(i int, now time.Time) bool {
	if i < 0 || i >= len(b.entries) {
		return false
	}
	if b.mode == ModeImport {
		return true
	}
	return now.Sub(b.entries[i].Record.PlayedAt) <= MaxScrobbleAge
}

// Submittable returns the records that are both included and eligible,
// in listening order.
func (b *Batch) Submittable(now time.Time) []Record {
	records := make([]Record, 0, len(b.entries))
	for i, e := range b.entries {
		if e.Included && b.Eligible(i, now) {
			records = append(records, e.Record)
		}
	}
	return records
}
