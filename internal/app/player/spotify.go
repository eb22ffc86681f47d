package player

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// SpotifyConfig represents the Spotify adapter settings.
type SpotifyConfig struct {
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	RefreshToken string `mapstructure:"refresh_token" validate:"required"`
}

// Spotify polls the Spotify Web API for the user's currently playing track.
type Spotify struct {
	mu     sync.Mutex
	config SpotifyConfig
	client *spotify.Client
}

// NewSpotify creates a Spotify adapter from decoded settings.
func NewSpotify(settings map[string]any) (Source, error) {
	var config SpotifyConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode spotify settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "invalid spotify settings")
	}
	return &Spotify{config: config}, nil
}

func (s *Spotify) Name() string {
	return "spotify"
}

// Connect builds an auto-refreshing API client and verifies it with a
// current-user lookup.
func (s *Spotify) Connect(ctx context.Context) error {
	auth := spotifyauth.New(
		spotifyauth.WithClientID(s.config.ClientID),
		spotifyauth.WithClientSecret(s.config.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
		),
	)

	token := &oauth2.Token{RefreshToken: s.config.RefreshToken}
	client := spotify.New(auth.Client(ctx, token))

	if _, err := client.CurrentUser(ctx); err != nil {
		return errors.Wrap(err, "failed to connect to spotify")
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

func (s *Spotify) Disconnect() error {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return nil
}

func (s *Spotify) CurrentTrack(ctx context.Context) (NowPlaying, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return NowPlaying{}, errors.New("spotify adapter is not connected")
	}

	cp, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return NowPlaying{}, errors.Wrap(err, "failed to query currently playing")
	}
	if cp == nil || cp.Item == nil {
		return NowPlaying{}, nil
	}

	item := cp.Item
	return NowPlaying{
		ID:       string(item.ID),
		Name:     item.Name,
		Artist:   joinArtists(item.Artists),
		Album:    item.Album.Name,
		Duration: item.TimeDuration(),
		Playing:  cp.Playing,
	}, nil
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func init() {
	Register("spotify", NewSpotify)
}
