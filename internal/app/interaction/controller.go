package interaction

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/playback"
	domain "github.com/osa030/loopbox/internal/domain/loop"
)

// Defaults
const (
	DefaultDragThresholdPx = 3.0
	DefaultDragReset       = 50 * time.Millisecond
	DefaultMagnifierHide   = 1200 * time.Millisecond
)

// Errors
var (
	ErrNoTimeline     = errors.New("timeline has no duration or width")
	ErrUnknownSegment = errors.New("unknown loop segment")
)

// Player is the part of the transport the controller drives.
type Player interface {
	Duration() int
	Seek(ctx context.Context, ms int) error
	PlayFrom(ctx context.Context, ms int) error
}

// Config holds controller configuration.
type Config struct {
	DragThresholdPx float64       // Movement before a segment press counts as a drag
	DragReset       time.Duration // How long "was dragged" stays set after pointer up
	MagnifierHide   time.Duration // Magnifier inactivity timeout
	Clock           clockwork.Clock
}

// Controller is the pointer state machine for one timeline.
type Controller struct {
	mu sync.Mutex

	ctx    context.Context
	store  *loop.Store
	player Player
	window Window
	config Config

	// Active gesture
	drag    DragState
	width   float64
	moved   bool
	release func()

	// Click suppression after a segment drag
	wasDragged bool
	dragGen    uint64
	dragTimer  clockwork.Timer

	// Magnifier
	magnifier Magnifier
	hideGen   uint64
	hideTimer clockwork.Timer
}

// NewController creates a controller. ctx bounds the seeks it issues.
func NewController(ctx context.Context, store *loop.Store, player Player, window Window, config Config) *Controller {
	if config.DragThresholdPx <= 0 {
		config.DragThresholdPx = DefaultDragThresholdPx
	}
	if config.DragReset <= 0 {
		config.DragReset = DefaultDragReset
	}
	if config.MagnifierHide <= 0 {
		config.MagnifierHide = DefaultMagnifierHide
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Controller{
		ctx:    ctx,
		store:  store,
		player: player,
		window: window,
		config: config,
		drag:   Idle{},
	}
}

// State returns the current gesture.
func (c *Controller) State() DragState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag
}

// Magnifier returns the magnifier state.
func (c *Controller) Magnifier() Magnifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.magnifier
}

// WasDragged reports whether a segment drag just ended.
func (c *Controller) WasDragged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasDragged
}

// PointerDown starts a gesture on target. x is the pointer offset from the
// left edge of the track and width the track width, both in pixels.
func (c *Controller) PointerDown(target Target, x, width float64) error {
	duration := c.player.Duration()
	if duration <= 0 || width <= 0 {
		return ErrNoTimeline
	}

	var next DragState
	switch t := target.(type) {
	case TrackTarget:
		next = ScrubbingTimeline{}
	case StartMarkerTarget:
		next = DraggingStartMarker{}
	case EndMarkerTarget:
		next = DraggingEndMarker{}
	case SegmentTarget:
		seg, ok := findSegment(c.store.Snapshot(), t.SegmentID)
		if !ok {
			return errors.Wrapf(ErrUnknownSegment, "pointer down on %s", t.SegmentID)
		}
		if err := c.store.SelectSegment(seg.ID); err != nil {
			return err
		}
		next = DraggingSegment{
			SegmentID:     seg.ID,
			OriginalStart: seg.Start,
			OriginalEnd:   seg.End,
			PointerStartX: x,
		}
	default:
		return errors.Newf("unsupported pointer target %T", target)
	}

	c.mu.Lock()
	c.endGestureLocked()
	c.drag = next
	c.width = width
	c.moved = false
	c.release = c.window.Capture(c)
	c.mu.Unlock()

	if _, ok := next.(ScrubbingTimeline); ok {
		c.scrubTo(x, width, duration)
	}
	return nil
}

// PointerMove handles a captured move event.
func (c *Controller) PointerMove(x float64) {
	c.mu.Lock()
	drag := c.drag
	width := c.width
	c.mu.Unlock()

	duration := c.player.Duration()
	if duration <= 0 || width <= 0 {
		return
	}

	switch d := drag.(type) {
	case ScrubbingTimeline:
		c.scrubTo(x, width, duration)

	case DraggingStartMarker:
		snap := c.store.Snapshot()
		ms := msAt(x, width, duration)
		if end := snap.PendingEnd; end != nil {
			ms = min(ms, *end-minGap(snap))
		}
		c.logStoreErr(c.store.SetPendingStart(&ms))
		c.showMagnifier(ms, x)

	case DraggingEndMarker:
		snap := c.store.Snapshot()
		ms := msAt(x, width, duration)
		if start := snap.PendingStart; start != nil {
			ms = max(ms, *start+minGap(snap))
		}
		c.logStoreErr(c.store.SetPendingEnd(&ms))
		c.showMagnifier(ms, x)

	case DraggingSegment:
		dx := x - d.PointerStartX
		c.mu.Lock()
		if !c.moved && math.Abs(dx) <= c.config.DragThresholdPx {
			c.mu.Unlock()
			return
		}
		c.moved = true
		c.mu.Unlock()

		start, end := shiftRange(d.OriginalStart, d.OriginalEnd, dx, width, duration)
		c.logStoreErr(c.store.UpdateRange(d.SegmentID, start, end))
		c.showMagnifier(start, x)
	}
}

// PointerUp ends the gesture and releases the captured events.
func (c *Controller) PointerUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.drag.(DraggingSegment); ok && c.moved {
		c.wasDragged = true
		c.dragGen++
		gen := c.dragGen
		if c.dragTimer != nil {
			c.dragTimer.Stop()
		}
		c.dragTimer = c.config.Clock.AfterFunc(c.config.DragReset, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.dragGen == gen {
				c.wasDragged = false
			}
		})
	}
	c.endGestureLocked()
}

// Cancel abandons the gesture without click suppression.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endGestureLocked()
}

// ClickSegment handles a click on a segment: it selects the segment and plays
// from its start, unless the click ends a drag. It reports whether it acted.
func (c *Controller) ClickSegment(id string) bool {
	if c.WasDragged() {
		return false
	}

	if err := c.store.SelectSegment(id); err != nil {
		c.logStoreErr(err)
		return false
	}
	seg, ok := findSegment(c.store.Snapshot(), id)
	if !ok {
		return false
	}
	if err := c.player.PlayFrom(c.ctx, seg.Start); err != nil {
		logTransportErr("play from", seg.Start, err)
	}
	return true
}

// Hover previews the time under the pointer without starting a gesture.
func (c *Controller) Hover(x, width float64) {
	duration := c.player.Duration()
	if duration <= 0 || width <= 0 {
		return
	}
	c.showMagnifier(msAt(x, width, duration), x)
}

// Close ends any gesture and stops the timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endGestureLocked()
	if c.dragTimer != nil {
		c.dragTimer.Stop()
	}
	if c.hideTimer != nil {
		c.hideTimer.Stop()
	}
	c.dragGen++
	c.hideGen++
	c.wasDragged = false
	c.magnifier.Visible = false
}

func (c *Controller) endGestureLocked() {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	c.drag = Idle{}
	c.moved = false
}

func (c *Controller) scrubTo(x, width float64, duration int) {
	ms := msAt(x, width, duration)
	if err := c.player.Seek(c.ctx, ms); err != nil {
		logTransportErr("seek", ms, err)
	}
	c.showMagnifier(ms, x)
}

func (c *Controller) showMagnifier(ms int, x float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.magnifier = Magnifier{Visible: true, Ms: ms, X: x}
	c.hideGen++
	gen := c.hideGen
	if c.hideTimer != nil {
		c.hideTimer.Stop()
	}
	c.hideTimer = c.config.Clock.AfterFunc(c.config.MagnifierHide, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hideGen == gen {
			c.magnifier.Visible = false
		}
	})
}

func (c *Controller) logStoreErr(err error) {
	if err != nil {
		zlog.Debug().Msgf("interaction: %v", err)
	}
}

func logTransportErr(op string, ms int, err error) {
	if playback.IsCannotPlay(err) {
		zlog.Debug().Msgf("interaction: %s %d skipped: %v", op, ms, err)
		return
	}
	zlog.Warn().Msgf("interaction: %s %d failed: %v", op, ms, err)
}

// msAt converts a pointer offset to a track position clamped to [0, duration].
func msAt(x, width float64, duration int) int {
	ratio := math.Max(0, math.Min(1, x/width))
	return int(math.Round(ratio * float64(duration)))
}

// shiftRange moves [start, end) by the time equivalent of dx pixels, keeping
// the length and staying inside [0, duration].
func shiftRange(start, end int, dx, width float64, duration int) (int, int) {
	length := end - start
	delta := int(math.Round(dx / width * float64(duration)))
	maxStart := max(0, duration-length)
	next := min(max(start+delta, 0), maxStart)
	return next, next + length
}

// minGap is how far a dragged marker must stay from the opposite one: scratch
// bounds may meet, segment bounds may not.
func minGap(snap loop.Snapshot) int {
	if snap.ActiveID() != "" {
		return loop.MinSegmentMs
	}
	return 0
}

func findSegment(snap loop.Snapshot, id string) (domain.Segment, bool) {
	for _, seg := range snap.Segments {
		if seg.ID == id {
			return seg, true
		}
	}
	return domain.Segment{}, false
}
