// Package monitor provides the per-player polling state machine that
// detects track changes, decides when a track has been listened to enough
// to scrobble, and manages the now-playing and loved-track side channel.
package monitor

// State represents the monitor connection state.
type State int

const (
	StateDisconnected State = iota // No player connection (initial/terminal)
	StateConnected                 // Polling a connected player
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
