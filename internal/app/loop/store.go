package loop

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/notification"
	"github.com/osa030/loopbox/internal/domain/loop"
)

// PositionFunc returns the live playback position in milliseconds.
type PositionFunc func() int

// Options configures a Store.
type Options struct {
	Position PositionFunc          // Live playback position (required)
	NewID    func() string         // Segment ID generator (defaults to loop.NewID)
	Notifier *notification.Manager // Change broadcaster (defaults to a private manager)
}

// Store owns the loop segments of the selected track, the active selection,
// the editor scratch values and the enabled flag.
//
// All mutations are ignored with ErrNotReady until the store is Ready.
// Subscribers are notified after the lock is released, so they may read
// the store from their callback.
type Store struct {
	mu sync.RWMutex

	phase    Phase
	trackID  string
	duration int

	segments []loop.Segment
	mode     EditorMode
	enabled  bool
	created  int // Number of segments created on this track, drives labels and colors

	position PositionFunc
	newID    func() string
	notifier *notification.Manager
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.NewID == nil {
		opts.NewID = loop.NewID
	}
	if opts.Notifier == nil {
		opts.Notifier = notification.NewManager()
	}
	if opts.Position == nil {
		opts.Position = func() int { return 0 }
	}
	return &Store{
		phase:    PhaseEmpty,
		mode:     NoSelection{},
		position: opts.Position,
		newID:    opts.NewID,
		notifier: opts.Notifier,
	}
}

// Notifier returns the manager change notifications are broadcast on.
func (s *Store) Notifier() *notification.Manager {
	return s.notifier
}

// Phase returns the current lifecycle phase.
func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// TrackID returns the selected track ID, or "" if none.
func (s *Store) TrackID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trackID
}

// Reset discards all state and binds the store to a new track.
// An empty trackID means no track is selected.
func (s *Store) Reset(trackID string, durationMs int) {
	s.mu.Lock()
	s.phase = PhaseEmpty
	s.trackID = trackID
	s.duration = max(durationMs, 0)
	s.segments = nil
	s.mode = NoSelection{}
	s.enabled = false
	s.created = 0
	s.mu.Unlock()

	s.notify(notification.KindReset, trackID)
}

// SetDuration updates the track duration once the transport knows it.
func (s *Store) SetDuration(durationMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = max(durationMs, 0)
}

// BeginHydration marks the store as waiting for the load of trackID.
func (s *Store) BeginHydration(trackID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trackID != trackID || trackID == "" {
		return false
	}
	s.phase = PhaseHydrating
	return true
}

// Hydrate installs the loaded state for trackID and makes the store Ready.
// A result for a track that is no longer selected is discarded. Pass a zero
// Hydration when nothing was loaded.
func (s *Store) Hydrate(trackID string, h loop.Hydration) bool {
	s.mu.Lock()
	if s.trackID != trackID || trackID == "" || s.phase == PhaseReady {
		selected := s.trackID
		s.mu.Unlock()
		zlog.Debug().Msgf("loop: discarded hydration for %q (selected=%q)", trackID, selected)
		return false
	}

	s.segments = make([]loop.Segment, 0, len(h.Segments))
	for _, seg := range h.Segments {
		if seg.Valid() {
			s.segments = append(s.segments, seg)
		}
	}
	s.created = len(s.segments)
	for _, seg := range s.segments {
		if n, ok := loop.LabelNumber(seg.Label); ok {
			s.created = max(s.created, n)
		}
	}
	s.mode = NoSelection{}
	s.enabled = false
	if s.indexLocked(h.ActiveID) >= 0 {
		s.mode = EditingSegment{SegmentID: h.ActiveID}
		s.enabled = h.Enabled
	}
	s.phase = PhaseReady
	s.mu.Unlock()

	s.notify(notification.KindHydrated, trackID)
	return true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Phase:    s.phase,
		TrackID:  s.trackID,
		Duration: s.duration,
		Segments: append([]loop.Segment(nil), s.segments...),
		Enabled:  s.enabled,
	}
	start, end := s.pendingLocked()
	snap.PendingStart = copyInt(start)
	snap.PendingEnd = copyInt(end)

	switch m := s.mode.(type) {
	case NoSelection:
		snap.Mode = NoSelection{PendingStart: copyInt(m.PendingStart), PendingEnd: copyInt(m.PendingEnd)}
	case EditingSegment:
		snap.Mode = m
	}
	return snap
}

// Record returns the persisted shape of the current state.
func (s *Store) Record() loop.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segments := append([]loop.Segment(nil), s.segments...)
	return loop.NewRecord(segments, s.activeIDLocked(), s.enabled)
}

// SelectSegment makes the segment active and binds the editor to its bounds.
func (s *Store) SelectSegment(id string) error {
	return s.mutate(func() (bool, error) {
		if s.indexLocked(id) < 0 {
			return false, errors.Wrapf(ErrUnknownSegment, "select %s", id)
		}
		if s.activeIDLocked() == id {
			return false, nil
		}
		s.mode = EditingSegment{SegmentID: id}
		return true, nil
	})
}

// ClearSelection drops the active segment and starts a new scratch loop at the
// live playback position. Looping is disabled.
func (s *Store) ClearSelection() error {
	pos := s.position()
	return s.mutate(func() (bool, error) {
		start := s.clampLocked(pos)
		s.mode = NoSelection{PendingStart: &start}
		s.enabled = false
		return true, nil
	})
}

// SetPendingStart writes the editor start. A start above the current end
// pulls the end up to match. While a segment is active the write goes to the
// segment, whose end is kept at least MinSegmentMs past the start; nil is
// then ignored.
func (s *Store) SetPendingStart(ms *int) error {
	return s.mutate(func() (bool, error) {
		return s.setStartLocked(ms)
	})
}

// SetPendingEnd writes the editor end. An end below the current start pulls
// the start down to match. While a segment is active the write goes to the
// segment, whose start is kept at least MinSegmentMs before the end; nil is
// then ignored.
func (s *Store) SetPendingEnd(ms *int) error {
	return s.mutate(func() (bool, error) {
		return s.setEndLocked(ms)
	})
}

// MarkStartAtCurrentPosition sets the editor start to the live position.
func (s *Store) MarkStartAtCurrentPosition() error {
	pos := s.position()
	return s.SetPendingStart(&pos)
}

// MarkEndAtCurrentPosition sets the editor end to the live position. When no
// segment is active and a start is already set, the scratch range is added as
// a new segment in the same step. added reports whether that happened.
func (s *Store) MarkEndAtCurrentPosition() (added bool, err error) {
	pos := s.position()
	err = s.mutate(func() (bool, error) {
		m, scratch := s.mode.(NoSelection)
		autoAdd := scratch && m.PendingStart != nil

		changed, err := s.setEndLocked(&pos)
		if err != nil || !autoAdd {
			return changed, err
		}
		if _, addErr := s.addLocked(); addErr != nil {
			zlog.Debug().Msgf("loop: auto-add skipped: %v", addErr)
			return changed, nil
		}
		added = true
		return true, nil
	})
	return added, err
}

// AddSegment commits the editor range as a new segment and makes it active.
// It fails with ErrInvalidRange unless both bounds are set and start < end.
func (s *Store) AddSegment() (loop.Segment, error) {
	var seg loop.Segment
	err := s.mutate(func() (bool, error) {
		var err error
		seg, err = s.addLocked()
		return err == nil, err
	})
	return seg, err
}

// RemoveSegment deletes a segment. Removing the active segment moves the
// selection to the first remaining segment, or to an empty editor when none
// remain, and disables looping.
func (s *Store) RemoveSegment(id string) error {
	return s.mutate(func() (bool, error) {
		return s.removeLocked(id)
	})
}

// UpdateLabel renames the active segment.
func (s *Store) UpdateLabel(label string) error {
	return s.mutate(func() (bool, error) {
		idx := s.indexLocked(s.activeIDLocked())
		if idx < 0 {
			return false, ErrNoActiveSegment
		}
		if s.segments[idx].Label == label {
			return false, nil
		}
		s.segments[idx].Label = label
		return true, nil
	})
}

// UpdateRange replaces a segment's bounds in one step. Callers clamp the range
// before calling; an invalid or out-of-track range is rejected.
func (s *Store) UpdateRange(id string, start, end int) error {
	return s.mutate(func() (bool, error) {
		idx := s.indexLocked(id)
		if idx < 0 {
			return false, errors.Wrapf(ErrUnknownSegment, "update range %s", id)
		}
		if start < 0 || start >= end || (s.duration > 0 && end > s.duration) {
			return false, errors.Wrapf(ErrInvalidRange, "update range %d-%d", start, end)
		}
		seg := &s.segments[idx]
		if seg.Start == start && seg.End == end {
			return false, nil
		}
		seg.Start, seg.End = start, end
		return true, nil
	})
}

// SetEnabled turns looping on or off. Turning it on requires an active segment
// with a valid range; otherwise the flag stays false.
func (s *Store) SetEnabled(enabled bool) error {
	return s.mutate(func() (bool, error) {
		if enabled {
			idx := s.indexLocked(s.activeIDLocked())
			if idx < 0 {
				return false, ErrNoActiveSegment
			}
			if !s.segments[idx].Valid() {
				return false, ErrInvalidRange
			}
		}
		if s.enabled == enabled {
			return false, nil
		}
		s.enabled = enabled
		return true, nil
	})
}

// ClearLoop removes the active segment, or clears the scratch range and
// disables looping when nothing is selected.
func (s *Store) ClearLoop() error {
	return s.mutate(func() (bool, error) {
		if id := s.activeIDLocked(); id != "" {
			return s.removeLocked(id)
		}
		s.mode = NoSelection{}
		s.enabled = false
		return true, nil
	})
}

// NudgeStart moves the editor start by delta milliseconds within the track.
// An unset start is nudged from zero.
func (s *Store) NudgeStart(delta int) error {
	return s.mutate(func() (bool, error) {
		if s.duration <= 0 {
			return false, ErrInvalidRange
		}
		start, _ := s.pendingLocked()
		next := s.clampLocked(valueOr(start, 0) + delta)
		return s.setStartLocked(&next)
	})
}

// NudgeEnd moves the editor end by delta milliseconds within the track.
// An unset end is nudged from zero.
func (s *Store) NudgeEnd(delta int) error {
	return s.mutate(func() (bool, error) {
		if s.duration <= 0 {
			return false, ErrInvalidRange
		}
		_, end := s.pendingLocked()
		next := s.clampLocked(valueOr(end, 0) + delta)
		return s.setEndLocked(&next)
	})
}

// SelectAdjacent activates the next (direction > 0) or previous segment in
// creation order, wrapping around. With nothing selected, next is the first
// segment and previous is the last.
func (s *Store) SelectAdjacent(direction int) (loop.Segment, error) {
	var seg loop.Segment
	err := s.mutate(func() (bool, error) {
		n := len(s.segments)
		if n == 0 {
			return false, ErrNoSegments
		}
		step := 1
		if direction < 0 {
			step = -1
		}

		var next int
		if cur := s.indexLocked(s.activeIDLocked()); cur < 0 {
			next = 0
			if step < 0 {
				next = n - 1
			}
		} else {
			next = ((cur+step)%n + n) % n
		}

		seg = s.segments[next]
		if seg.ID == s.activeIDLocked() {
			return false, nil
		}
		s.mode = EditingSegment{SegmentID: seg.ID}
		return true, nil
	})
	return seg, err
}

// IncrementRepetitions counts one enforced repetition of a segment.
func (s *Store) IncrementRepetitions(id string) error {
	return s.mutate(func() (bool, error) {
		idx := s.indexLocked(id)
		if idx < 0 {
			return false, errors.Wrapf(ErrUnknownSegment, "increment %s", id)
		}
		s.segments[idx].Repetitions++
		return true, nil
	})
}

// mutate runs fn under the write lock when the store is Ready and notifies
// subscribers of a mutation if fn reports a change.
func (s *Store) mutate(fn func() (bool, error)) error {
	s.mu.Lock()
	if s.phase != PhaseReady {
		phase := s.phase
		s.mu.Unlock()
		return errors.Wrapf(ErrNotReady, "phase %s", phase)
	}
	changed, err := fn()
	trackID := s.trackID
	s.mu.Unlock()

	if changed {
		s.notify(notification.KindMutated, trackID)
	}
	return err
}

func (s *Store) notify(kind notification.Kind, trackID string) {
	if err := s.notifier.Broadcast(&notification.Notification{Kind: kind, TrackID: trackID}); err != nil {
		zlog.Warn().Msgf("loop: notify %s failed: %v", kind, err)
	}
}

func (s *Store) setStartLocked(ms *int) (bool, error) {
	switch m := s.mode.(type) {
	case NoSelection:
		if ms == nil {
			if m.PendingStart == nil {
				return false, nil
			}
			m.PendingStart = nil
			s.mode = m
			return true, nil
		}
		v := s.clampLocked(*ms)
		m.PendingStart = &v
		if m.PendingEnd != nil && v > *m.PendingEnd {
			end := v
			m.PendingEnd = &end
		}
		s.mode = m
		return true, nil

	case EditingSegment:
		if ms == nil {
			return false, nil
		}
		idx := s.indexLocked(m.SegmentID)
		if idx < 0 {
			return false, ErrNoActiveSegment
		}
		v := s.clampLocked(*ms)
		if s.duration > 0 {
			v = min(v, max(s.duration-MinSegmentMs, 0))
		}
		seg := &s.segments[idx]
		end := max(seg.End, v+MinSegmentMs)
		if seg.Start == v && seg.End == end {
			return false, nil
		}
		seg.Start, seg.End = v, end
		return true, nil
	}
	return false, nil
}

func (s *Store) setEndLocked(ms *int) (bool, error) {
	switch m := s.mode.(type) {
	case NoSelection:
		if ms == nil {
			if m.PendingEnd == nil {
				return false, nil
			}
			m.PendingEnd = nil
			s.mode = m
			return true, nil
		}
		v := s.clampLocked(*ms)
		m.PendingEnd = &v
		if m.PendingStart != nil && v < *m.PendingStart {
			start := v
			m.PendingStart = &start
		}
		s.mode = m
		return true, nil

	case EditingSegment:
		if ms == nil {
			return false, nil
		}
		idx := s.indexLocked(m.SegmentID)
		if idx < 0 {
			return false, ErrNoActiveSegment
		}
		v := max(s.clampLocked(*ms), MinSegmentMs)
		seg := &s.segments[idx]
		start := min(seg.Start, v-MinSegmentMs)
		if seg.Start == start && seg.End == v {
			return false, nil
		}
		seg.Start, seg.End = start, v
		return true, nil
	}
	return false, nil
}

func (s *Store) addLocked() (loop.Segment, error) {
	start, end := s.pendingLocked()
	if start == nil || end == nil {
		return loop.Segment{}, errors.Wrap(ErrInvalidRange, "start and end must both be set")
	}
	if *start >= *end {
		return loop.Segment{}, errors.Wrapf(ErrInvalidRange, "start %d is not before end %d", *start, *end)
	}

	s.created++
	seg := loop.New(s.newID(), s.created, *start, *end)
	s.segments = append(s.segments, seg)
	s.mode = EditingSegment{SegmentID: seg.ID}
	zlog.Debug().Msgf("loop: added %s %d-%d on %s", seg.Label, seg.Start, seg.End, s.trackID)
	return seg, nil
}

func (s *Store) removeLocked(id string) (bool, error) {
	idx := s.indexLocked(id)
	if idx < 0 {
		return false, errors.Wrapf(ErrUnknownSegment, "remove %s", id)
	}
	wasActive := s.activeIDLocked() == id
	s.segments = append(s.segments[:idx:idx], s.segments[idx+1:]...)

	if wasActive {
		s.enabled = false
		if len(s.segments) > 0 {
			s.mode = EditingSegment{SegmentID: s.segments[0].ID}
		} else {
			s.mode = NoSelection{}
		}
	}
	return true, nil
}

// pendingLocked returns the editor start/end for the current mode.
func (s *Store) pendingLocked() (start, end *int) {
	switch m := s.mode.(type) {
	case NoSelection:
		return m.PendingStart, m.PendingEnd
	case EditingSegment:
		if idx := s.indexLocked(m.SegmentID); idx >= 0 {
			seg := s.segments[idx]
			return &seg.Start, &seg.End
		}
	}
	return nil, nil
}

func (s *Store) activeIDLocked() string {
	if m, ok := s.mode.(EditingSegment); ok {
		return m.SegmentID
	}
	return ""
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, seg := range s.segments {
		if seg.ID == id {
			return i
		}
	}
	return -1
}

// clampLocked bounds ms to [0, duration]. An unknown duration only bounds below.
func (s *Store) clampLocked(ms int) int {
	if ms < 0 {
		return 0
	}
	if s.duration > 0 && ms > s.duration {
		return s.duration
	}
	return ms
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
