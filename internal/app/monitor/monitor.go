package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/spinlog/spinlog/internal/app/player"
	"github.com/spinlog/spinlog/internal/app/submit"
	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// Errors
var (
	ErrAlreadyConnected = errors.New("monitor is already connected")
	ErrNotConnected     = errors.New("monitor is not connected")
	ErrNoCurrentTrack   = errors.New("no current track")
)

// SideChannel covers the best-effort service calls a monitor makes when
// the current track changes. Failures degrade displayed information only.
type SideChannel interface {
	UpdateNowPlaying(ctx context.Context, r scrobble.Record) error
	IsLoved(ctx context.Context, artist, track string) (bool, error)
	PlayCount(ctx context.Context, artist, track string) (int, error)
	ArtworkURL(ctx context.Context, artist, track string) (string, error)
	SetLoved(ctx context.Context, artist, track string, loved bool) error
}

// Config holds monitor configuration.
type Config struct {
	PercentageToScrobble float64       // Fraction of the track that must play, in [0.5, 1.0]
	PollInterval         time.Duration // Refresh tick interval (source-specific, 100ms-1s)
}

// Session is a snapshot of the monitor's per-player state.
type Session struct {
	State      State
	Track      player.NowPlaying
	Elapsed    int // Seconds of active listening on the current track
	Scrobbled  bool
	Loved      bool
	PlayCount  int
	ArtworkURL string
}

// Monitor is a polling state machine over one player source. Two tickers
// (refresh and count) mutate the session; both are serialized through a
// single mutex so a refresh-triggered reset cannot interleave with a
// count-tick increment. Network calls are dispatched asynchronously and
// their results are applied back under the same lock, guarded by a
// generation token so stale results are discarded.
type Monitor struct {
	mu sync.Mutex

	source    player.Source
	submitter submit.Submitter
	side      SideChannel
	config    Config

	state      State
	connecting bool
	current    *player.NowPlaying
	advancing  bool
	elapsed    int
	scrobbled  bool
	loved      bool
	playCount  int
	artworkURL string
	generation uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventCh chan Event
}

// New creates a monitor for the given player source. The scrobble
// percentage is validated at construction, never at runtime.
func New(source player.Source, submitter submit.Submitter, side SideChannel, cfg Config) (*Monitor, error) {
	if cfg.PercentageToScrobble < 0.5 || cfg.PercentageToScrobble > 1.0 {
		return nil, errors.Newf("percentage to scrobble must be in [0.5, 1.0], got %v", cfg.PercentageToScrobble)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Monitor{
		source:    source,
		submitter: submitter,
		side:      side,
		config:    cfg,
		state:     StateDisconnected,
		eventCh:   make(chan Event, 16),
	}, nil
}

// Events returns the event channel.
func (m *Monitor) Events() <-chan Event {
	return m.eventCh
}

// Snapshot returns a copy of the current session state.
func (m *Monitor) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{
		State:      m.state,
		Elapsed:    m.elapsed,
		Scrobbled:  m.scrobbled,
		Loved:      m.loved,
		PlayCount:  m.playCount,
		ArtworkURL: m.artworkURL,
	}
	if m.current != nil {
		s.Track = *m.current
	}
	return s
}

// Connect acquires the player connection and starts both tickers. On
// failure the monitor stays disconnected.
func (m *Monitor) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.connecting {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	// Claimed until the connection attempt commits or fails, so a second
	// Connect cannot slip in and double-start the tickers.
	m.connecting = true
	m.mu.Unlock()

	err := m.source.Connect(ctx)
	if err != nil {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
		return errors.Wrapf(err, "failed to connect to %s", m.source.Name())
	}

	tickCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.connecting = false
	m.state = StateConnected
	m.resetSessionLocked()
	m.cancel = cancel
	m.sendEventLocked(Event{
		Type:   EventConnected,
		State:  m.state,
		Status: fmt.Sprintf("connected to %s", m.source.Name()),
	})
	m.mu.Unlock()

	m.wg.Add(2)
	go m.refreshLoop(tickCtx)
	go m.countLoop(tickCtx)

	return nil
}

// Disconnect releases the player connection. Both tickers are stopped
// before the method returns. Idempotent.
func (m *Monitor) Disconnect() error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.cancel = nil
	m.state = StateDisconnected
	m.resetSessionLocked()
	m.sendEventLocked(Event{
		Type:   EventDisconnected,
		State:  m.state,
		Status: fmt.Sprintf("disconnected from %s", m.source.Name()),
	})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	if err := m.source.Disconnect(); err != nil {
		zlog.Warn().Msgf("monitor: error releasing %s connection: %v", m.source.Name(), err)
	}
	return nil
}

// Love toggles the loved state of the current track. Gated on a connected
// session with a known identity; does not affect monitor state.
func (m *Monitor) Love(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoCurrentTrack
	}
	artist := m.current.Artist
	track := m.current.Name
	desired := !m.loved
	gen := m.generation
	m.mu.Unlock()

	if err := m.side.SetLoved(ctx, artist, track, desired); err != nil {
		return errors.Wrap(err, "failed to set loved state")
	}

	m.mu.Lock()
	if m.generation == gen {
		m.loved = desired
	}
	m.mu.Unlock()
	return nil
}

func (m *Monitor) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshTick(ctx)
		}
	}
}

func (m *Monitor) countLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.countTick()
		}
	}
}

// refreshTick queries the player and applies identity changes. The query
// runs outside the lock so a slow player cannot stall the count tick.
func (m *Monitor) refreshTick(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	m.mu.Unlock()

	np, err := m.source.CurrentTrack(ctx)
	if err != nil {
		m.handlePollError(err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.generation != gen {
		// Disconnected or identity reset while the query was in flight.
		return
	}

	m.advancing = np.Playing && !np.Empty()

	switch {
	case np.Empty() && m.current == nil:
		return
	case np.Empty():
		// Player went silent.
		m.current = nil
		m.resetCountersLocked()
		return
	case m.current != nil && m.current.SameTrack(np):
		// Same identity; pick up late-arriving duration fixes.
		m.current.Duration = np.Duration
		return
	}

	// New identity.
	current := np
	m.current = &current
	m.resetCountersLocked()
	m.generation++
	newGen := m.generation

	m.sendEventLocked(Event{
		Type:   EventTrackChanged,
		Track:  np,
		State:  m.state,
		Status: fmt.Sprintf("now playing: %s - %s", np.Artist, np.Name),
	})

	// Side-channel refreshes are fire and forget; their failure never
	// changes monitor state.
	record := scrobble.Record{
		Artist:      np.Artist,
		Track:       np.Name,
		Album:       np.Album,
		AlbumArtist: np.AlbumArtist,
		Duration:    np.Duration,
		PlayedAt:    time.Now().UTC(),
	}
	go m.pushNowPlaying(ctx, record)
	go m.refreshTrackInfo(ctx, np, newGen)
}

// countTick advances the elapsed counter while the player reports active
// playback, and triggers at most one submission per track.
func (m *Monitor) countTick() {
	m.mu.Lock()

	if m.state != StateConnected || m.current == nil || !m.advancing {
		m.mu.Unlock()
		return
	}

	m.elapsed++

	if m.scrobbled || m.current.Duration <= 0 {
		m.mu.Unlock()
		return
	}

	threshold := int(math.Ceil(m.current.Duration.Seconds() * m.config.PercentageToScrobble))
	if m.elapsed < threshold {
		m.mu.Unlock()
		return
	}

	// At-most-once per track: flag flips before the outcome is known.
	m.scrobbled = true
	record := scrobble.Record{
		Artist:      m.current.Artist,
		Track:       m.current.Name,
		Album:       m.current.Album,
		AlbumArtist: m.current.AlbumArtist,
		Duration:    m.current.Duration,
		PlayedAt:    time.Now().Add(-time.Duration(m.elapsed) * time.Second).UTC(),
	}
	track := *m.current
	m.mu.Unlock()

	go m.submitScrobble(record, track)
}

func (m *Monitor) submitScrobble(record scrobble.Record, track player.NowPlaying) {
	res, err := m.submitter.Submit(context.Background(), []scrobble.Record{record})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		zlog.Warn().Msgf("monitor: scrobble failed: track=%s error=%v", record.Track, err)
		m.sendEventLocked(Event{
			Type:   EventScrobbled,
			Track:  track,
			State:  m.state,
			Status: fmt.Sprintf("scrobble failed: %v", err),
		})
		return
	}

	zlog.Debug().Msgf("monitor: scrobbled: artist=%s track=%s", record.Artist, record.Track)
	m.sendEventLocked(Event{
		Type:   EventScrobbled,
		Track:  track,
		State:  m.state,
		Status: res.Status,
	})
}

func (m *Monitor) pushNowPlaying(ctx context.Context, record scrobble.Record) {
	if err := m.side.UpdateNowPlaying(ctx, record); err != nil {
		zlog.Debug().Msgf("monitor: now-playing update failed: %v", err)
	}
}

func (m *Monitor) refreshTrackInfo(ctx context.Context, np player.NowPlaying, gen uint64) {
	loved, lovedErr := m.side.IsLoved(ctx, np.Artist, np.Name)
	count, countErr := m.side.PlayCount(ctx, np.Artist, np.Name)
	artwork, artworkErr := m.side.ArtworkURL(ctx, np.Artist, np.Name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		// Track changed while the fetch was in flight.
		return
	}
	if lovedErr == nil {
		m.loved = loved
	} else {
		zlog.Debug().Msgf("monitor: loved-state fetch failed: %v", lovedErr)
	}
	if countErr == nil {
		m.playCount = count
	} else {
		zlog.Debug().Msgf("monitor: play-count fetch failed: %v", countErr)
	}
	if artworkErr == nil {
		m.artworkURL = artwork
	} else {
		zlog.Debug().Msgf("monitor: artwork fetch failed: %v", artworkErr)
	}
}

// handlePollError treats a poll failure as an implicit disconnect. The
// tickers stop via context cancellation; no automatic reconnect.
func (m *Monitor) handlePollError(err error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.cancel = nil
	m.state = StateDisconnected
	m.resetSessionLocked()
	m.sendEventLocked(Event{
		Type:   EventError,
		State:  m.state,
		Status: fmt.Sprintf("lost connection to %s: %v", m.source.Name(), err),
	})
	m.mu.Unlock()

	zlog.Error().Msgf("monitor: poll failed, disconnecting: source=%s error=%v", m.source.Name(), err)
	if cancel != nil {
		cancel()
	}
	if derr := m.source.Disconnect(); derr != nil {
		zlog.Warn().Msgf("monitor: error releasing %s connection: %v", m.source.Name(), derr)
	}
}

// resetSessionLocked clears the whole session. Must be called with the
// lock held.
func (m *Monitor) resetSessionLocked() {
	m.current = nil
	m.advancing = false
	m.resetCountersLocked()
	m.generation++
}

// resetCountersLocked clears the per-track counters. Must be called with
// the lock held.
func (m *Monitor) resetCountersLocked() {
	m.elapsed = 0
	m.scrobbled = false
	m.loved = false
	m.playCount = 0
	m.artworkURL = ""
}

// sendEventLocked sends an event without blocking. Must be called with
// the lock held.
func (m *Monitor) sendEventLocked(e Event) {
	select {
	case m.eventCh <- e:
	default:
		// Channel full, drop event.
	}
}
