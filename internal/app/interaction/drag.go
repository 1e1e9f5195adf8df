// Package interaction translates pointer gestures on the timeline into loop
// store operations and seeks.
package interaction

// DragState is the single active pointer gesture.
type DragState interface {
	dragState()
	String() string
}

// Idle means no gesture is in progress.
type Idle struct{}

// ScrubbingTimeline seeks while the pointer moves over the track.
type ScrubbingTimeline struct{}

// DraggingStartMarker moves the editor start.
type DraggingStartMarker struct{}

// DraggingEndMarker moves the editor end.
type DraggingEndMarker struct{}

// DraggingSegment moves a whole segment, keeping its length.
type DraggingSegment struct {
	SegmentID     string
	OriginalStart int
	OriginalEnd   int
	PointerStartX float64
}

func (Idle) dragState()                {}
func (ScrubbingTimeline) dragState()   {}
func (DraggingStartMarker) dragState() {}
func (DraggingEndMarker) dragState()   {}
func (DraggingSegment) dragState()     {}

func (Idle) String() string                { return "idle" }
func (ScrubbingTimeline) String() string   { return "scrubbing" }
func (DraggingStartMarker) String() string { return "dragging_start" }
func (DraggingEndMarker) String() string   { return "dragging_end" }
func (DraggingSegment) String() string     { return "dragging_segment" }

// Target is what the pointer went down on.
type Target interface {
	target()
}

// TrackTarget is the bare timeline track.
type TrackTarget struct{}

// StartMarkerTarget is the start marker handle.
type StartMarkerTarget struct{}

// EndMarkerTarget is the end marker handle.
type EndMarkerTarget struct{}

// SegmentTarget is a segment's body.
type SegmentTarget struct {
	SegmentID string
}

func (TrackTarget) target()       {}
func (StartMarkerTarget) target() {}
func (EndMarkerTarget) target()   {}
func (SegmentTarget) target()     {}

// Handler receives the pointer events captured for an active gesture.
type Handler interface {
	PointerMove(x float64)
	PointerUp()
}

// Window routes global pointer events. Capture starts delivering move and up
// events to h until the returned release func is called. Capture must not
// deliver events before it returns.
type Window interface {
	Capture(h Handler) (release func())
}

// Magnifier is the transient time preview shown near the pointer.
type Magnifier struct {
	Visible bool
	Ms      int
	X       float64
}
