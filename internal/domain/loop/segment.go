// Package loop provides the loop segment domain entity and its persisted shape.
package loop

import (
	"fmt"

	"github.com/google/uuid"
)

// Palette is the fixed color cycle assigned to segments by creation order.
var Palette = []string{
	"#f59e0b",
	"#10b981",
	"#3b82f6",
	"#8b5cf6",
	"#ec4899",
	"#ef4444",
	"#14b8a6",
}

// Segment is a named, colored time range over a track. Offsets are milliseconds.
type Segment struct {
	ID          string `json:"id"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Color       string `json:"color"`
	Label       string `json:"label"`
	Repetitions int    `json:"repetitions,omitempty"`
}

// Valid reports whether the segment spans a non-empty range.
func (s Segment) Valid() bool {
	return s.Start >= 0 && s.Start < s.End
}

// Length returns the segment length in milliseconds.
func (s Segment) Length() int {
	return s.End - s.Start
}

// New creates a segment for the n-th creation (1-based) on a track.
func New(id string, n, start, end int) Segment {
	return Segment{
		ID:    id,
		Start: start,
		End:   end,
		Color: ColorFor(n),
		Label: DefaultLabel(n),
	}
}

// ColorFor returns the palette color for the n-th created segment (1-based).
func ColorFor(n int) string {
	if n < 1 {
		n = 1
	}
	return Palette[(n-1)%len(Palette)]
}

// DefaultLabel returns the default label for the n-th created segment (1-based).
func DefaultLabel(n int) string {
	return fmt.Sprintf("Loop %d", n)
}

// LabelNumber returns n for a default label "Loop n".
func LabelNumber(label string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(label, "Loop %d", &n); err != nil || n < 1 || DefaultLabel(n) != label {
		return 0, false
	}
	return n, true
}

// NewID returns a fresh segment identifier.
func NewID() string {
	return uuid.New().String()
}
