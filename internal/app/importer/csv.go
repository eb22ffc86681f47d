package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// CSVImporter reads listening history from a CSV export. The first row is
// a header naming the columns; artist and track are required, album,
// album_artist, duration and timestamp are optional. Rows appear in
// listening order. Timestamps are RFC 3339 or Unix seconds; rows without
// one get a zero timestamp and rely on import-mode re-timing.
type CSVImporter struct{}

// NewCSV creates a CSV importer.
func NewCSV() Importer {
	return &CSVImporter{}
}

func init() {
	Register("csv", NewCSV)
}

// Name implements Importer.
func (i *CSVImporter) Name() string {
	return "csv"
}

// Description implements Importer.
func (i *CSVImporter) Description() string {
	return "CSV export with a header row (artist, track, album, album_artist, duration, timestamp)"
}

// Read implements Importer.
func (i *CSVImporter) Read(ctx context.Context, path string) ([]scrobble.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // column count is taken from the header

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, required := range []string{"artist", "track"} {
		if _, ok := columns[required]; !ok {
			return nil, errors.Newf("CSV header is missing the %q column", required)
		}
	}

	var records []scrobble.Record
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV row %d", line+1)
		}
		line++

		record, err := i.parseRow(columns, row)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid CSV row %d", line)
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, errors.Newf("no scrobbles found in %s", path)
	}
	return records, nil
}

func (i *CSVImporter) parseRow(columns map[string]int, row []string) (scrobble.Record, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	record := scrobble.Record{
		Artist:      field("artist"),
		Track:       field("track"),
		Album:       field("album"),
		AlbumArtist: field("album_artist"),
	}

	if raw := field("duration"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return scrobble.Record{}, errors.Wrapf(err, "invalid duration %q", raw)
		}
		record.Duration = time.Duration(seconds * float64(time.Second))
	}

	if raw := field("timestamp"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return scrobble.Record{}, err
		}
		record.PlayedAt = ts
	}

	if err := record.Validate(); err != nil {
		return scrobble.Record{}, err
	}
	return record, nil
}

// parseTimestamp accepts RFC 3339 or Unix seconds, normalized to UTC.
func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}
	return time.Time{}, errors.Newf("invalid timestamp %q: want RFC 3339 or Unix seconds", raw)
}
