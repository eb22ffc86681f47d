// Package queue provides the durable offline scrobble queue, one SQLite
// store per authenticated user.
package queue

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

const appName = "spinlog"

// Store is a durable, insertion-ordered queue of undelivered scrobbles.
// All access is serialized through a single mutex; flush throughput is not
// performance-critical.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the offline queue for the given user
// under the XDG data directory.
func Open(user string) (*Store, error) {
	if user == "" {
		return nil, errors.New("user is required")
	}
	path, err := xdg.DataFile(filepath.Join(appName, user+"-queue.db"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve queue path")
	}
	return OpenPath(path)
}

// OpenPath opens the offline queue at an explicit path.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create queue directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open queue database")
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize queue schema")
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS offline_scrobbles (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			album_artist TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			played_at INTEGER NOT NULL,
			enqueued_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_offline_scrobbles_seq ON offline_scrobbles(seq);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Enqueue appends a record to the queue.
func (s *Store) Enqueue(qr scrobble.QueuedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO offline_scrobbles
			(id, artist, track, album, album_artist, duration_ms, played_at, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		qr.ID,
		qr.Record.Artist,
		qr.Record.Track,
		qr.Record.Album,
		qr.Record.AlbumArtist,
		qr.Record.Duration.Milliseconds(),
		qr.Record.PlayedAt.Unix(),
		qr.EnqueuedAt.Unix(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to enqueue scrobble")
	}
	return nil
}

// Drain returns every queued record in insertion order. Records are not
// removed; callers confirm delivery through Remove.
func (s *Store) Drain() ([]scrobble.QueuedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, artist, track, album, album_artist, duration_ms, played_at, enqueued_at
		FROM offline_scrobbles ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read offline queue")
	}
	defer rows.Close()

	var out []scrobble.QueuedRecord
	for rows.Next() {
		var (
			qr         scrobble.QueuedRecord
			durationMS int64
			playedAt   int64
			enqueuedAt int64
		)
		if err := rows.Scan(
			&qr.ID,
			&qr.Record.Artist,
			&qr.Record.Track,
			&qr.Record.Album,
			&qr.Record.AlbumArtist,
			&durationMS,
			&playedAt,
			&enqueuedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan queued scrobble")
		}
		qr.Record.Duration = time.Duration(durationMS) * time.Millisecond
		qr.Record.PlayedAt = time.Unix(playedAt, 0).UTC()
		qr.EnqueuedAt = time.Unix(enqueuedAt, 0).UTC()
		out = append(out, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read offline queue")
	}
	return out, nil
}

// Remove deletes the records with the given IDs, typically after their
// delivery has been confirmed.
func (s *Store) Remove(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM offline_scrobbles WHERE id = ?`, id); err != nil {
			return errors.Wrap(err, "failed to remove queued scrobble")
		}
	}
	return tx.Commit()
}

// Len returns the number of queued records.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM offline_scrobbles`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count queued scrobbles")
	}
	return n, nil
}
