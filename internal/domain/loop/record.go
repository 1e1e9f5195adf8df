package loop

// Record is the persisted loop state for one (user, track) pair.
// LoopStart and LoopEnd are the legacy single-loop fields written before
// segments existed. They are read for backward compatibility only.
type Record struct {
	Segments     []Segment `json:"segments"`
	ActiveLoopID *string   `json:"activeLoopId"`
	LoopEnabled  bool      `json:"loopEnabled"`
	LoopStart    *int      `json:"loopStart,omitempty"`
	LoopEnd      *int      `json:"loopEnd,omitempty"`
}

// Hydration is the in-memory state recovered from a Record.
type Hydration struct {
	Segments []Segment
	ActiveID string
	Enabled  bool
}

// NewRecord builds the record persisted for the given state.
// The active segment's bounds are mirrored into the legacy fields.
func NewRecord(segments []Segment, activeID string, enabled bool) Record {
	rec := Record{LoopEnabled: enabled}
	if len(segments) > 0 {
		rec.Segments = make([]Segment, len(segments))
		copy(rec.Segments, segments)
	}
	if activeID == "" {
		return rec
	}

	id := activeID
	rec.ActiveLoopID = &id
	for _, s := range segments {
		if s.ID == activeID {
			start, end := s.Start, s.End
			rec.LoopStart = &start
			rec.LoopEnd = &end
			break
		}
	}
	return rec
}

// Upgrade converts the record into in-memory state. The segment array is
// preferred; a legacy start/end pair becomes one synthesized segment.
// Segments that do not span a valid range are dropped. ok is false when the
// record holds nothing usable.
func (r *Record) Upgrade(newID func() string) (h Hydration, ok bool) {
	if r == nil {
		return Hydration{}, false
	}

	if r.Segments != nil {
		for _, s := range r.Segments {
			if s.Valid() {
				h.Segments = append(h.Segments, s)
			}
		}
		if len(h.Segments) == 0 {
			return Hydration{}, true
		}
		h.ActiveID = h.Segments[0].ID
		if r.ActiveLoopID != nil {
			for _, s := range h.Segments {
				if s.ID == *r.ActiveLoopID {
					h.ActiveID = s.ID
					break
				}
			}
		}
		h.Enabled = r.LoopEnabled
		return h, true
	}

	if r.LoopStart == nil || r.LoopEnd == nil {
		return Hydration{}, false
	}
	seg := New(newID(), 1, *r.LoopStart, *r.LoopEnd)
	if !seg.Valid() {
		return Hydration{}, false
	}
	return Hydration{
		Segments: []Segment{seg},
		ActiveID: seg.ID,
		Enabled:  r.LoopEnabled,
	}, true
}
