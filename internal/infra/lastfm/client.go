// Package lastfm provides the tracking-service client used by the
// submission pipeline and the playback monitors.
package lastfm

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/shkh/lastfm-go/lastfm"

	"github.com/spinlog/spinlog/internal/domain/scrobble"
)

// maxBatchSize is the service's per-request scrobble limit.
const maxBatchSize = 50

// ErrNotAuthenticated is returned when an operation requires a session key.
var ErrNotAuthenticated = errors.New("not authenticated with last.fm")

// Config represents Last.fm client configuration.
type Config struct {
	APIKey     string
	APISecret  string
	SessionKey string // Optional; can be set later via SetSession
	Username   string
}

// Client is a Last.fm API client. The underlying library does not accept
// contexts, so each call checks for cancellation before going out.
type Client struct {
	api      *lastfm.Api
	apiKey   string
	session  string
	username string
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("last.fm API key and secret are required")
	}

	c := &Client{
		api:      lastfm.New(cfg.APIKey, cfg.APISecret),
		apiKey:   cfg.APIKey,
		username: cfg.Username,
	}
	if cfg.SessionKey != "" {
		c.SetSession(cfg.Username, cfg.SessionKey)
	}
	return c, nil
}

// SetSession installs an authenticated session key.
func (c *Client) SetSession(username, sessionKey string) {
	c.session = sessionKey
	c.username = username
	c.api.SetSession(sessionKey)
}

// Authenticated reports whether a session key is set.
func (c *Client) Authenticated() bool {
	return c.session != ""
}

// Username returns the authenticated user name.
func (c *Client) Username() string {
	return c.username
}

// GetToken requests an authentication token (desktop auth flow).
func (c *Client) GetToken() (string, error) {
	token, err := c.api.GetToken()
	if err != nil {
		return "", errors.Wrap(err, "failed to get auth token")
	}
	return token, nil
}

// AuthURL returns the user-authorization URL for a token.
func (c *Client) AuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", c.apiKey, token)
}

// LoginWithToken exchanges an authorized token for a session key.
func (c *Client) LoginWithToken(token string) (string, error) {
	if err := c.api.LoginWithToken(token); err != nil {
		return "", errors.Wrap(err, "failed to exchange token for session")
	}
	c.session = c.api.GetSessionKey()

	// Username is cosmetic here; a fetch failure keeps the session valid.
	if info, err := c.api.User.GetInfo(nil); err == nil {
		c.username = info.Name
	}
	return c.session, nil
}

// SubmitScrobbles submits the records in batches of up to 50 per request.
// A request-level failure is reported as an error with the number of
// records already delivered.
func (c *Client) SubmitScrobbles(ctx context.Context, records []scrobble.Record) (int, int, error) {
	if !c.Authenticated() {
		return 0, 0, ErrNotAuthenticated
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	accepted := 0
	for start := 0; start < len(records); start += maxBatchSize {
		if err := ctx.Err(); err != nil {
			return accepted, 0, errors.Wrap(err, "submission cancelled")
		}

		end := start + maxBatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		artists := make([]string, len(chunk))
		tracks := make([]string, len(chunk))
		timestamps := make([]int64, len(chunk))
		albums := make([]string, len(chunk))
		for i, r := range chunk {
			artists[i] = r.Artist
			tracks[i] = r.Track
			timestamps[i] = r.PlayedAt.Unix()
			albums[i] = r.Album
		}

		params := lastfm.P{
			"artist":    artists,
			"track":     tracks,
			"timestamp": timestamps,
			"album":     albums,
		}

		if _, err := c.api.Track.Scrobble(params); err != nil {
			return accepted, 0, errors.Wrapf(err, "failed to scrobble batch of %d", len(chunk))
		}
		accepted += len(chunk)
		zlog.Debug().Msgf("scrobbled batch: count=%d total=%d", len(chunk), accepted)
	}

	return accepted, 0, nil
}

// UpdateNowPlaying sends a non-committing "now playing" signal.
func (c *Client) UpdateNowPlaying(ctx context.Context, r scrobble.Record) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := lastfm.P{
		"artist": r.Artist,
		"track":  r.Track,
	}
	if r.Album != "" {
		params["album"] = r.Album
	}
	if r.AlbumArtist != "" && r.AlbumArtist != r.Artist {
		params["albumArtist"] = r.AlbumArtist
	}
	if r.Duration > 0 {
		params["duration"] = int(r.Duration.Seconds())
	}

	if _, err := c.api.Track.UpdateNowPlaying(params); err != nil {
		return errors.Wrap(err, "failed to update now playing")
	}
	return nil
}

// RecentActivityCount returns the number of scrobbles the authenticated
// user submitted since the given time.
func (c *Client) RecentActivityCount(ctx context.Context, since time.Time) (int, error) {
	if !c.Authenticated() {
		return 0, ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := c.api.User.GetRecentTracks(lastfm.P{
		"user":  c.username,
		"from":  since.Unix(),
		"limit": 1,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch recent tracks")
	}
	return result.Total, nil
}

// IsLoved reports whether the authenticated user has loved the track.
func (c *Client) IsLoved(ctx context.Context, artist, track string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	result, err := c.api.Track.GetInfo(lastfm.P{
		"artist":   artist,
		"track":    track,
		"username": c.username,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to fetch track info")
	}
	return result.UserLoved == "1", nil
}

// PlayCount returns the authenticated user's play count for the track.
func (c *Client) PlayCount(ctx context.Context, artist, track string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := c.api.Track.GetInfo(lastfm.P{
		"artist":   artist,
		"track":    track,
		"username": c.username,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch track info")
	}
	n, err := strconv.Atoi(result.UserPlayCount)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ArtworkURL returns the album artwork URL the service publishes for the
// track, or the empty string when it has none.
func (c *Client) ArtworkURL(ctx context.Context, artist, track string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	result, err := c.api.Track.GetInfo(lastfm.P{
		"artist": artist,
		"track":  track,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch track info")
	}

	// Image sizes are listed smallest first.
	images := result.Album.Images
	if len(images) == 0 {
		return "", nil
	}
	return images[len(images)-1].Url, nil
}

// SetLoved loves or unloves a track for the authenticated user.
func (c *Client) SetLoved(ctx context.Context, artist, track string, loved bool) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}

	call, action := c.api.Track.Love, "love"
	if !loved {
		call, action = c.api.Track.UnLove, "unlove"
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := call(lastfm.P{"artist": artist, "track": track}); err != nil {
		return errors.Wrapf(err, "failed to %s track", action)
	}
	return nil
}
