package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/dexterlb/mpvipc"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// MPVConfig represents the mpv adapter settings.
type MPVConfig struct {
	Socket string `mapstructure:"socket" validate:"required"`
}

// MPV polls a local mpv instance over its JSON IPC socket
// (mpv --input-ipc-server=<socket>).
type MPV struct {
	mu     sync.Mutex
	config MPVConfig
	conn   *mpvipc.Connection
}

// NewMPV creates an mpv adapter from decoded settings.
func NewMPV(settings map[string]any) (Source, error) {
	var config MPVConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode mpv settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "invalid mpv settings")
	}
	return &MPV{config: config}, nil
}

func (m *MPV) Name() string {
	return "mpv"
}

func (m *MPV) Connect(_ context.Context) error {
	conn := mpvipc.NewConnection(m.config.Socket)
	if err := conn.Open(); err != nil {
		return errors.Wrapf(err, "failed to open mpv socket %s", m.config.Socket)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	return nil
}

func (m *MPV) Disconnect() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "failed to close mpv socket")
	}
	return nil
}

func (m *MPV) CurrentTrack(_ context.Context) (NowPlaying, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return NowPlaying{}, errors.New("mpv adapter is not connected")
	}

	// Double read of the file path: mpv answers property queries during
	// file loading, so a path that changes between the two reads means a
	// transition is in flight. Report silence and let the next poll settle.
	pathBefore := getString(conn, "path")
	title := getString(conn, "media-title")
	pathAfter := getString(conn, "path")
	if pathBefore != pathAfter {
		return NowPlaying{}, nil
	}
	if pathAfter == "" {
		return NowPlaying{}, nil
	}

	np := NowPlaying{
		ID:   pathAfter,
		Name: title,
	}

	if md, err := conn.Get("metadata"); err == nil {
		if fields, ok := md.(map[string]interface{}); ok {
			np.Artist = metadataString(fields, "artist", "ARTIST")
			np.Album = metadataString(fields, "album", "ALBUM")
			np.AlbumArtist = metadataString(fields, "album_artist", "ALBUM_ARTIST")
			if np.Name == "" {
				np.Name = metadataString(fields, "title", "TITLE")
			}
		}
	}

	if d, err := conn.Get("duration"); err == nil {
		if seconds, ok := d.(float64); ok && seconds > 0 {
			np.Duration = time.Duration(seconds * float64(time.Second))
		}
	}

	paused := false
	if p, err := conn.Get("pause"); err == nil {
		if b, ok := p.(bool); ok {
			paused = b
		}
	}
	np.Playing = !paused

	return np, nil
}

func getString(conn *mpvipc.Connection, property string) string {
	v, err := conn.Get(property)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func metadataString(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func init() {
	Register("mpv", NewMPV)
}
