package monitor

import "github.com/spinlog/spinlog/internal/app/player"

// EventType represents a monitor event type.
type EventType int

const (
	EventConnected    EventType = iota // Player connection established
	EventDisconnected                  // Player connection released
	EventTrackChanged                  // Current track identity changed
	EventScrobbled                     // A scrobble submission was attempted
	EventError                         // Connection lost or poll failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventTrackChanged:
		return "track_changed"
	case EventScrobbled:
		return "scrobbled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a monitor event.
type Event struct {
	Type   EventType
	Track  player.NowPlaying // Current track (zero for some events)
	State  State             // Monitor state after the event
	Status string            // Human-readable status text
}
