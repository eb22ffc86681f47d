package importer

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// MediaLibraryImporter reads an iTunes-style property-list library export.
// Tracks are emitted in release order (disc number, then track number);
// the library's last-played date is carried over when present.
type MediaLibraryImporter struct{}

// NewMediaLibrary creates a media-library XML importer.
func NewMediaLibrary() Importer {
	return &MediaLibraryImporter{}
}

func init() {
	Register("medialib", NewMediaLibrary)
}

// Name implements Importer.
func (i *MediaLibraryImporter) Name() string {
	return "medialib"
}

// Description implements Importer.
func (i *MediaLibraryImporter) Description() string {
	return "iTunes-style media library XML export, emitted in release order"
}

// Read implements Importer.
func (i *MediaLibraryImporter) Read(ctx context.Context, path string) ([]scrobble.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	root, err := parsePlist(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	tracks, ok := root.dict["Tracks"]
	if !ok || tracks.dict == nil {
		return nil, errors.Newf("no Tracks dictionary found in %s", path)
	}

	type orderedRecord struct {
		record scrobble.Record
		disc   int
		track  int
	}
	var ordered []orderedRecord
	for _, entry := range tracks.dict {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.dict == nil {
			continue
		}
		record := scrobble.Record{
			Artist:      entry.dict["Artist"].text,
			Track:       entry.dict["Name"].text,
			Album:       entry.dict["Album"].text,
			AlbumArtist: entry.dict["Album Artist"].text,
		}
		if record.Artist == "" || record.Track == "" {
			// Podcasts, videos and partially tagged entries.
			continue
		}
		if ms := entry.dict["Total Time"].intValue(); ms > 0 {
			record.Duration = time.Duration(ms) * time.Millisecond
		}
		if raw := entry.dict["Play Date UTC"].text; raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				record.PlayedAt = ts.UTC()
			}
		}
		ordered = append(ordered, orderedRecord{
			record: record,
			disc:   entry.dict["Disc Number"].intValue(),
			track:  entry.dict["Track Number"].intValue(),
		})
	}
	if len(ordered) == 0 {
		return nil, errors.Newf("no usable tracks found in %s", path)
	}

	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].disc != ordered[b].disc {
			return ordered[a].disc < ordered[b].disc
		}
		return ordered[a].track < ordered[b].track
	})

	records := make([]scrobble.Record, len(ordered))
	for idx, o := range ordered {
		records[idx] = o.record
	}
	return records, nil
}

// plistValue is a minimal property-list value: scalar text, or a dict.
// Arrays and booleans are consumed but not retained.
type plistValue struct {
	text string
	dict map[string]plistValue
}

func (v plistValue) intValue() int {
	n, err := strconv.Atoi(v.text)
	if err != nil {
		return 0
	}
	return n
}

// parsePlist walks the token stream; a plist dict alternates <key> and
// value elements, which encoding/xml cannot express declaratively.
func parsePlist(r io.Reader) (plistValue, error) {
	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if err != nil {
			return plistValue{}, errors.Wrap(err, "no top-level dict found")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "plist" {
			continue
		}
		return parseValue(decoder, start)
	}
}

func parseValue(d *xml.Decoder, start xml.StartElement) (plistValue, error) {
	switch start.Name.Local {
	case "dict":
		return parseDict(d)
	case "string", "integer", "real", "date", "data":
		var text string
		if err := d.DecodeElement(&text, &start); err != nil {
			return plistValue{}, errors.Wrapf(err, "failed to decode <%s>", start.Name.Local)
		}
		return plistValue{text: text}, nil
	case "true":
		if err := d.Skip(); err != nil {
			return plistValue{}, err
		}
		return plistValue{text: "1"}, nil
	case "false":
		if err := d.Skip(); err != nil {
			return plistValue{}, err
		}
		return plistValue{text: "0"}, nil
	default:
		// Arrays and anything unexpected are skipped wholesale.
		if err := d.Skip(); err != nil {
			return plistValue{}, err
		}
		return plistValue{}, nil
	}
}

func parseDict(d *xml.Decoder) (plistValue, error) {
	dict := make(map[string]plistValue)
	var key string
	var haveKey bool
	for {
		tok, err := d.Token()
		if err != nil {
			return plistValue{}, errors.Wrap(err, "unterminated dict")
		}
		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "dict" {
				return plistValue{dict: dict}, nil
			}
		case xml.StartElement:
			if t.Name.Local == "key" {
				if err := d.DecodeElement(&key, &t); err != nil {
					return plistValue{}, errors.Wrap(err, "failed to decode <key>")
				}
				haveKey = true
				continue
			}
			value, err := parseValue(d, t)
			if err != nil {
				return plistValue{}, err
			}
			if haveKey {
				dict[key] = value
				haveKey = false
			}
		}
	}
}
