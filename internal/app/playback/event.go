package playback

import "github.com/osa030/scenebox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackCompleted EventType = iota // Track played to its end
	EventTrackSkipped                    // User left the track early
	EventStateChanged                    // Observable state changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackCompleted:
		return "track_completed"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Track    track.Track // Track the event applies to (zero for EventStateChanged)
	Snapshot Snapshot    // State after the event
}
