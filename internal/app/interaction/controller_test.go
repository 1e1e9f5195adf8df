package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/loopbox/internal/app/loop"
	domain "github.com/osa030/loopbox/internal/domain/loop"
)

const duration = 200000

type fakeWindow struct {
	handler  Handler
	captures int
	releases int
}

func (w *fakeWindow) Capture(h Handler) func() {
	w.captures++
	w.handler = h
	return func() {
		w.releases++
		w.handler = nil
	}
}

func (w *fakeWindow) move(x float64) {
	if w.handler != nil {
		w.handler.PointerMove(x)
	}
}

func (w *fakeWindow) up() {
	if w.handler != nil {
		w.handler.PointerUp()
	}
}

type fakePlayer struct {
	duration int
	seeks    []int
	plays    []int
}

func (p *fakePlayer) Duration() int { return p.duration }

func (p *fakePlayer) Seek(_ context.Context, ms int) error {
	p.seeks = append(p.seeks, ms)
	return nil
}

func (p *fakePlayer) PlayFrom(_ context.Context, ms int) error {
	p.plays = append(p.plays, ms)
	return nil
}

type fixture struct {
	ctrl   *Controller
	store  *loop.Store
	player *fakePlayer
	window *fakeWindow
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T, segments ...domain.Segment) *fixture {
	t.Helper()
	store := loop.NewStore(loop.Options{})
	store.Reset("track-1", duration)
	h := domain.Hydration{Segments: segments}
	if len(segments) > 0 {
		h.ActiveID = segments[0].ID
	}
	require.True(t, store.Hydrate("track-1", h))

	f := &fixture{
		store:  store,
		player: &fakePlayer{duration: duration},
		window: &fakeWindow{},
		clock:  clockwork.NewFakeClock(),
	}
	f.ctrl = NewController(context.Background(), store, f.player, f.window, Config{Clock: f.clock})
	return f
}

func TestController_ScrubTimeline(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.PointerDown(TrackTarget{}, 100, 1000))
	assert.Equal(t, ScrubbingTimeline{}, f.ctrl.State())
	assert.Equal(t, []int{20000}, f.player.seeks)
	assert.Equal(t, Magnifier{Visible: true, Ms: 20000, X: 100}, f.ctrl.Magnifier())

	f.window.move(500)
	f.window.move(-40)
	f.window.move(5000)
	assert.Equal(t, []int{20000, 100000, 0, duration}, f.player.seeks)

	f.window.up()
	assert.Equal(t, Idle{}, f.ctrl.State())
	assert.Equal(t, 1, f.window.captures)
	assert.Equal(t, 1, f.window.releases)

	// Moves after release are not delivered.
	f.window.move(300)
	assert.Len(t, f.player.seeks, 4)
}

func TestController_MagnifierHidesAfterInactivity(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.PointerDown(TrackTarget{}, 100, 1000))

	f.clock.Advance(time.Second)
	f.window.move(200)
	f.clock.Advance(time.Second)
	assert.True(t, f.ctrl.Magnifier().Visible, "activity restarts the timeout")

	f.clock.Advance(300 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return !f.ctrl.Magnifier().Visible
	}, time.Second, 5*time.Millisecond)
}

func TestController_DragMarkers(t *testing.T) {
	seg := domain.New("a", 1, 20000, 30000)
	f := newFixture(t, seg)

	require.NoError(t, f.ctrl.PointerDown(StartMarkerTarget{}, 100, 1000))
	assert.Equal(t, DraggingStartMarker{}, f.ctrl.State())
	assert.Empty(t, f.player.seeks, "marker press does not seek")

	f.window.move(125) // 25000
	active, _ := f.store.Snapshot().Active()
	assert.Equal(t, 25000, active.Start)

	f.window.move(900) // past the end, held just before the end
	active, _ = f.store.Snapshot().Active()
	assert.Equal(t, 30000-loop.MinSegmentMs, active.Start)
	assert.Equal(t, 30000, active.End)
	assert.True(t, active.Valid())
	f.window.up()

	require.NoError(t, f.ctrl.PointerDown(EndMarkerTarget{}, 150, 1000))
	f.window.move(200) // 40000
	f.window.move(10)  // before the start, held just after the start
	active, _ = f.store.Snapshot().Active()
	assert.Equal(t, 30000, active.End)
	assert.True(t, active.Valid())
	f.window.move(250)
	active, _ = f.store.Snapshot().Active()
	assert.Equal(t, 30000-loop.MinSegmentMs, active.Start)
	assert.Equal(t, 50000, active.End)
	f.window.up()

	assert.Equal(t, 2, f.window.releases)
}

func TestController_DragSegmentPreservesLength(t *testing.T) {
	seg := domain.New("a", 1, 20000, 30000)
	f := newFixture(t, seg)

	// One pixel per millisecond.
	require.NoError(t, f.ctrl.PointerDown(SegmentTarget{SegmentID: "a"}, 25000, duration))
	assert.Equal(t, DraggingSegment{SegmentID: "a", OriginalStart: 20000, OriginalEnd: 30000, PointerStartX: 25000}, f.ctrl.State())

	f.window.move(30000)
	got, _ := f.store.Snapshot().Active()
	assert.Equal(t, 25000, got.Start)
	assert.Equal(t, 35000, got.End)
	assert.Equal(t, 10000, got.Length())
	assert.Equal(t, Magnifier{Visible: true, Ms: 25000, X: 30000}, f.ctrl.Magnifier(), "magnifier follows the new start")

	f.window.up()
	assert.True(t, f.ctrl.WasDragged())
	assert.False(t, f.ctrl.ClickSegment("a"), "click right after a drag is suppressed")
	assert.Empty(t, f.player.plays)

	f.clock.Advance(DefaultDragReset)
	assert.Eventually(t, func() bool { return !f.ctrl.WasDragged() }, time.Second, 5*time.Millisecond)
	assert.True(t, f.ctrl.ClickSegment("a"))
	assert.Equal(t, []int{25000}, f.player.plays)
}

func TestController_DragSegmentClampsToTrack(t *testing.T) {
	tests := []struct {
		name      string
		moveTo    float64
		wantStart int
		wantEnd   int
	}{
		{name: "past the end", moveTo: 1500, wantStart: duration - 10000, wantEnd: duration},
		{name: "before the start", moveTo: 0, wantStart: 0, wantEnd: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domain.New("a", 1, 20000, 30000))
			require.NoError(t, f.ctrl.PointerDown(SegmentTarget{SegmentID: "a"}, 500, 1000))
			f.window.move(tt.moveTo)
			got, _ := f.store.Snapshot().Active()
			assert.Equal(t, tt.wantStart, got.Start)
			assert.Equal(t, tt.wantEnd, got.End)
		})
	}
}

func TestController_SmallMovementIsAClick(t *testing.T) {
	a := domain.New("a", 1, 1000, 2000)
	b := domain.New("b", 2, 20000, 30000)
	f := newFixture(t, a, b)

	require.NoError(t, f.ctrl.PointerDown(SegmentTarget{SegmentID: "b"}, 500, 1000))
	assert.Equal(t, "b", f.store.Snapshot().ActiveID(), "press selects the segment")

	f.window.move(502)
	f.window.move(497)
	got, _ := f.store.Snapshot().Active()
	assert.Equal(t, 20000, got.Start, "movement within the threshold does not move the segment")

	f.window.up()
	assert.False(t, f.ctrl.WasDragged())
	assert.True(t, f.ctrl.ClickSegment("b"))
	assert.Equal(t, []int{20000}, f.player.plays)
}

func TestController_NewGestureReleasesPrevious(t *testing.T) {
	f := newFixture(t, domain.New("a", 1, 1000, 2000))

	require.NoError(t, f.ctrl.PointerDown(TrackTarget{}, 10, 100))
	require.NoError(t, f.ctrl.PointerDown(StartMarkerTarget{}, 10, 100))
	assert.Equal(t, 2, f.window.captures)
	assert.Equal(t, 1, f.window.releases)

	f.ctrl.Cancel()
	assert.Equal(t, Idle{}, f.ctrl.State())
	assert.Equal(t, 2, f.window.releases)
}

func TestController_PointerDownErrors(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.PointerDown(SegmentTarget{SegmentID: "missing"}, 10, 100)
	assert.True(t, errors.Is(err, ErrUnknownSegment))

	assert.True(t, errors.Is(f.ctrl.PointerDown(TrackTarget{}, 10, 0), ErrNoTimeline))

	f.player.duration = 0
	assert.True(t, errors.Is(f.ctrl.PointerDown(TrackTarget{}, 10, 100), ErrNoTimeline))
	assert.Equal(t, 0, f.window.captures)
}

func TestController_CloseReleasesCapture(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.PointerDown(TrackTarget{}, 10, 100))
	f.ctrl.Close()

	assert.Equal(t, 1, f.window.releases)
	assert.False(t, f.ctrl.Magnifier().Visible)
}

func TestShiftRange(t *testing.T) {
	start, end := shiftRange(20000, 30000, 50, 1000, 200000)
	assert.Equal(t, 30000, start)
	assert.Equal(t, 40000, end)

	start, end = shiftRange(0, 300000, 50, 1000, 200000)
	assert.Equal(t, 0, start, "segment longer than the track stays at zero")
	assert.Equal(t, 300000, end)
}
