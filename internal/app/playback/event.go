package playback

// EventType represents a playback event type.
type EventType int

const (
	EventTrackLoaded  EventType = iota // Track loaded and positioned at zero
	EventStateChanged                  // Playback state changed (play/pause/resume)
	EventSeeked                        // Position jumped
	EventTrackEnded                    // Track reached its end
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackLoaded:
		return "track_loaded"
	case EventStateChanged:
		return "state_changed"
	case EventSeeked:
		return "seeked"
	case EventTrackEnded:
		return "track_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	State  State  // Playback state after the event
	Update Update // Position at the time of the event
}
