// Package loop provides the loop segment store for the selected track.
package loop

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/loop"
)

// Errors
var (
	ErrNotReady        = errors.New("loop store is not ready")
	ErrInvalidRange    = errors.New("loop range is invalid")
	ErrNoActiveSegment = errors.New("no active loop segment")
	ErrUnknownSegment  = errors.New("unknown loop segment")
	ErrNoPendingValue  = errors.New("no pending value")
	ErrNoSegments      = errors.New("no loop segments")
)

// MinSegmentMs is the shortest range a segment can be edited down to.
const MinSegmentMs = 1

// Phase represents the store lifecycle phase for the selected track.
type Phase int

const (
	PhaseEmpty     Phase = iota // No track, or track reset and not yet loading
	PhaseHydrating              // Waiting for the saved state to load
	PhaseReady                  // Accepting mutations
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseHydrating:
		return "hydrating"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// EditorMode is what the start/end editor is bound to: either scratch values
// for a loop not yet added, or the bounds of the active segment.
type EditorMode interface {
	editorMode()
}

// NoSelection holds the scratch start/end for a new loop. Nil means unset.
type NoSelection struct {
	PendingStart *int
	PendingEnd   *int
}

// EditingSegment binds the editor to the bounds of an existing segment.
type EditingSegment struct {
	SegmentID string
}

func (NoSelection) editorMode()    {}
func (EditingSegment) editorMode() {}

// Snapshot is a copy of the store state.
type Snapshot struct {
	Phase    Phase
	TrackID  string
	Duration int
	Segments []loop.Segment
	Mode     EditorMode
	Enabled  bool

	// PendingStart and PendingEnd are the values shown in the editor.
	// While a segment is active they mirror its bounds.
	PendingStart *int
	PendingEnd   *int
}

// ActiveID returns the active segment ID, or "" when nothing is selected.
func (s Snapshot) ActiveID() string {
	if m, ok := s.Mode.(EditingSegment); ok {
		return m.SegmentID
	}
	return ""
}

// Active returns the active segment.
func (s Snapshot) Active() (loop.Segment, bool) {
	id := s.ActiveID()
	if id == "" {
		return loop.Segment{}, false
	}
	for _, seg := range s.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return loop.Segment{}, false
}

// Looping reports whether enforcement should run: enabled with a valid active segment.
func (s Snapshot) Looping() bool {
	if !s.Enabled {
		return false
	}
	seg, ok := s.Active()
	return ok && seg.Valid()
}

// CanAdd reports whether AddSegment would succeed.
func (s Snapshot) CanAdd() bool {
	return s.Phase == PhaseReady &&
		s.PendingStart != nil && s.PendingEnd != nil &&
		*s.PendingStart < *s.PendingEnd
}
