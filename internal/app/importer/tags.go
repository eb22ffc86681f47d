package importer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// audioExtensions are the container formats the tag reader understands.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".m4b":  true,
	".m4p":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".dsf":  true,
}

// TagsImporter scans a directory of tagged audio files and emits one
// record per file in release order (disc number, then track number).
// Tags carry no play history, so every record has a zero timestamp and
// the batch is expected to be re-timed in import mode.
type TagsImporter struct{}

// NewTags creates a tagged-audio-files importer.
func NewTags() Importer {
	return &TagsImporter{}
}

func init() {
	Register("tags", NewTags)
}

// Name implements Importer.
func (i *TagsImporter) Name() string {
	return "tags"
}

// Description implements Importer.
func (i *TagsImporter) Description() string {
	return "directory of tagged audio files, emitted in release order"
}

// Read implements Importer.
func (i *TagsImporter) Read(ctx context.Context, path string) ([]scrobble.Record, error) {
	type orderedRecord struct {
		record scrobble.Record
		disc   int
		track  int
		path   string
	}
	var ordered []orderedRecord

	err := filepath.WalkDir(path, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(file))] {
			return nil
		}

		record, disc, track, rerr := readFileTags(file)
		if rerr != nil {
			// A single unreadable file does not abort the import.
			zlog.Warn().Msgf("importer: skipping %s: %v", file, rerr)
			return nil
		}
		ordered = append(ordered, orderedRecord{record: record, disc: disc, track: track, path: file})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", path)
	}
	if len(ordered) == 0 {
		return nil, errors.Newf("no tagged audio files found under %s", path)
	}

	// Path order breaks ties so re-runs are deterministic.
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].disc != ordered[b].disc {
			return ordered[a].disc < ordered[b].disc
		}
		if ordered[a].track != ordered[b].track {
			return ordered[a].track < ordered[b].track
		}
		return ordered[a].path < ordered[b].path
	})

	records := make([]scrobble.Record, len(ordered))
	for idx, o := range ordered {
		records[idx] = o.record
	}
	return records, nil
}

func readFileTags(path string) (scrobble.Record, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return scrobble.Record{}, 0, 0, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return scrobble.Record{}, 0, 0, errors.Wrap(err, "failed to read tags")
	}

	record := scrobble.Record{
		Artist:      m.Artist(),
		Track:       m.Title(),
		Album:       m.Album(),
		AlbumArtist: m.AlbumArtist(),
	}
	if err := record.Validate(); err != nil {
		return scrobble.Record{}, 0, 0, err
	}
	trackNum, _ := m.Track()
	discNum, _ := m.Disc()
	return record, discNum, trackNum, nil
}
