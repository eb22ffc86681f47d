package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinlog/spinlog/internal/app/player"
	"github.com/spinlog/spinlog/internal/app/submit"
	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

type fakeSource struct {
	mu         sync.Mutex
	np         player.NowPlaying
	connectErr error
	pollErr    error
	connected  bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSource) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSource) CurrentTrack(context.Context) (player.NowPlaying, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return player.NowPlaying{}, f.pollErr
	}
	return f.np, nil
}

func (f *fakeSource) set(np player.NowPlaying) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.np = np
}

type fakeSide struct {
	mu        sync.Mutex
	loved     bool
	playCount int
	artwork   string
	setLoved  []bool
	nowCalls  int
}

func (f *fakeSide) UpdateNowPlaying(context.Context, scrobble.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowCalls++
	return nil
}

func (f *fakeSide) IsLoved(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loved, nil
}

func (f *fakeSide) PlayCount(context.Context, string, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCount, nil
}

func (f *fakeSide) ArtworkURL(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artwork, nil
}

func (f *fakeSide) SetLoved(_ context.Context, _, _ string, loved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLoved = append(f.setLoved, loved)
	return nil
}

type captureSubmitter struct {
	mu      sync.Mutex
	batches [][]scrobble.Record
}

func (c *captureSubmitter) Submit(_ context.Context, records []scrobble.Record) (submit.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]scrobble.Record, len(records))
	copy(batch, records)
	c.batches = append(c.batches, batch)
	return submit.Result{Accepted: len(records), Status: "ok"}, nil
}

func (c *captureSubmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// testMonitor builds a monitor in the connected state without starting the
// tickers, so tests drive the ticks deterministically.
func testMonitor(t *testing.T, source *fakeSource, sub submit.Submitter, side SideChannel) *Monitor {
	t.Helper()
	m, err := New(source, sub, side, Config{PercentageToScrobble: 0.5})
	require.NoError(t, err)
	m.state = StateConnected
	return m
}

func liveTrack() player.NowPlaying {
	return player.NowPlaying{
		ID:       "track-1",
		Name:     "Everything In Its Right Place",
		Artist:   "Radiohead",
		Album:    "Kid A",
		Duration: 10 * time.Second,
		Playing:  true,
	}
}

func TestNew_PercentageValidation(t *testing.T) {
	tests := []struct {
		name    string
		pct     float64
		wantErr bool
	}{
		{name: "Lower bound", pct: 0.5},
		{name: "Upper bound", pct: 1.0},
		{name: "Typical", pct: 0.9},
		{name: "Too low", pct: 0.4, wantErr: true},
		{name: "Too high", pct: 1.2, wantErr: true},
		{name: "Zero", pct: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&fakeSource{}, &captureSubmitter{}, &fakeSide{}, Config{PercentageToScrobble: tt.pct})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	source := &fakeSource{}
	m, err := New(source, &captureSubmitter{}, &fakeSide{}, Config{
		PercentageToScrobble: 0.5,
		PollInterval:         time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, StateDisconnected, m.Snapshot().State)

	require.NoError(t, m.Connect(context.Background()))
	snap := m.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.True(t, snap.Track.Empty(), "no current identity right after connect")

	assert.ErrorIs(t, m.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
	assert.False(t, source.connected)

	// Idempotent.
	require.NoError(t, m.Disconnect())
}

// blockingSource parks Connect until released, so tests can observe the
// monitor mid-acquisition.
type blockingSource struct {
	fakeSource
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Connect(ctx context.Context) error {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeSource.Connect(ctx)
}

func TestConnectConcurrentCallsStartOnce(t *testing.T) {
	source := &blockingSource{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, err := New(source, &captureSubmitter{}, &fakeSide{}, Config{
		PercentageToScrobble: 0.5,
		PollInterval:         time.Hour,
	})
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() { firstErr <- m.Connect(context.Background()) }()
	<-source.entered

	// Second call while the first is still acquiring the connection.
	assert.ErrorIs(t, m.Connect(context.Background()), ErrAlreadyConnected)

	close(source.release)
	require.NoError(t, <-firstErr)
	assert.Equal(t, StateConnected, m.Snapshot().State)

	require.NoError(t, m.Disconnect())
}

func TestConnectFailureStaysDisconnected(t *testing.T) {
	source := &fakeSource{connectErr: errors.New("player not running")}
	m, err := New(source, &captureSubmitter{}, &fakeSide{}, Config{PercentageToScrobble: 0.5})
	require.NoError(t, err)

	assert.Error(t, m.Connect(context.Background()))
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
}

func TestRefreshTickDetectsNewTrack(t *testing.T) {
	source := &fakeSource{}
	side := &fakeSide{loved: true, playCount: 7, artwork: "https://img.example/kid-a.jpg"}
	m := testMonitor(t, source, &captureSubmitter{}, side)

	source.set(liveTrack())
	m.refreshTick(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, "Everything In Its Right Place", snap.Track.Name)
	assert.Zero(t, snap.Elapsed)
	assert.False(t, snap.Scrobbled)

	// Loved state, play count and artwork arrive asynchronously.
	assert.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Loved && s.PlayCount == 7 && s.ArtworkURL == "https://img.example/kid-a.jpg"
	}, time.Second, 10*time.Millisecond)

	// Now-playing push is fire and forget.
	assert.Eventually(t, func() bool {
		side.mu.Lock()
		defer side.mu.Unlock()
		return side.nowCalls == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCountTickScrobblesOnceAtThreshold(t *testing.T) {
	source := &fakeSource{}
	sub := &captureSubmitter{}
	m := testMonitor(t, source, sub, &fakeSide{})

	source.set(liveTrack()) // 10s duration, 50% => threshold 5 ticks
	m.refreshTick(context.Background())

	for i := 0; i < 4; i++ {
		m.countTick()
	}
	assert.Zero(t, sub.count(), "below threshold, no submission")
	assert.False(t, m.Snapshot().Scrobbled)

	m.countTick()
	assert.True(t, m.Snapshot().Scrobbled)
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 10*time.Millisecond)

	// Further identity-unchanged ticks cause no second submission.
	for i := 0; i < 10; i++ {
		m.countTick()
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sub.count())

	sub.mu.Lock()
	record := sub.batches[0][0]
	sub.mu.Unlock()
	assert.Equal(t, "Radiohead", record.Artist)
	assert.Equal(t, "Everything In Its Right Place", record.Track)
}

func TestCountTickIgnoredWhilePaused(t *testing.T) {
	source := &fakeSource{}
	m := testMonitor(t, source, &captureSubmitter{}, &fakeSide{})

	paused := liveTrack()
	paused.Playing = false
	source.set(paused)
	m.refreshTick(context.Background())

	for i := 0; i < 10; i++ {
		m.countTick()
	}
	assert.Zero(t, m.Snapshot().Elapsed)
}

func TestTrackChangeMidAccumulationResets(t *testing.T) {
	source := &fakeSource{}
	sub := &captureSubmitter{}
	m := testMonitor(t, source, sub, &fakeSide{})

	source.set(liveTrack())
	m.refreshTick(context.Background())
	for i := 0; i < 3; i++ {
		m.countTick()
	}
	assert.Equal(t, 3, m.Snapshot().Elapsed)

	next := liveTrack()
	next.ID = "track-2"
	next.Name = "Kid A"
	source.set(next)
	m.refreshTick(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, "Kid A", snap.Track.Name)
	assert.Zero(t, snap.Elapsed, "counters reset for the new identity")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, sub.count(), "no submission for the abandoned track")
}

func TestPlayerSilenceClearsIdentity(t *testing.T) {
	source := &fakeSource{}
	m := testMonitor(t, source, &captureSubmitter{}, &fakeSide{})

	source.set(liveTrack())
	m.refreshTick(context.Background())
	require.False(t, m.Snapshot().Track.Empty())

	source.set(player.NowPlaying{})
	m.refreshTick(context.Background())
	assert.True(t, m.Snapshot().Track.Empty())
}

func TestPollErrorForcesDisconnect(t *testing.T) {
	source := &fakeSource{connected: true}
	m := testMonitor(t, source, &captureSubmitter{}, &fakeSide{})

	source.mu.Lock()
	source.pollErr = errors.New("automation handle invalidated")
	source.mu.Unlock()

	m.refreshTick(context.Background())
	assert.Equal(t, StateDisconnected, m.Snapshot().State)
	assert.False(t, source.connected)
}

func TestLoveGatedOnCurrentTrack(t *testing.T) {
	source := &fakeSource{}
	side := &fakeSide{playCount: 3}
	m := testMonitor(t, source, &captureSubmitter{}, side)

	assert.ErrorIs(t, m.Love(context.Background()), ErrNoCurrentTrack)

	source.set(liveTrack())
	m.refreshTick(context.Background())

	// Wait for the async track-info fetch so it cannot clobber the toggle.
	require.Eventually(t, func() bool { return m.Snapshot().PlayCount == 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Love(context.Background()))
	assert.True(t, m.Snapshot().Loved)

	require.NoError(t, m.Love(context.Background()))
	assert.False(t, m.Snapshot().Loved)

	side.mu.Lock()
	assert.Equal(t, []bool{true, false}, side.setLoved)
	side.mu.Unlock()
}

func TestLoveWhenDisconnected(t *testing.T) {
	m, err := New(&fakeSource{}, &captureSubmitter{}, &fakeSide{}, Config{PercentageToScrobble: 0.5})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Love(context.Background()), ErrNotConnected)
}
