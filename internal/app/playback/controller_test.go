package playback

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/loopbox/internal/domain/track"
)

func newTestTrack() *track.Track {
	return &track.Track{ID: "t1", Name: "Practice Song", Duration: 10 * time.Second}
}

func drainEvents(c *Controller) []EventType {
	var types []EventType
	for {
		select {
		case e := <-c.Events():
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestController_NoTrackCannotPlay(t *testing.T) {
	c := NewController(Config{Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	assert.True(t, IsCannotPlay(c.PlayFrom(ctx, 0)))
	assert.True(t, IsCannotPlay(c.Seek(ctx, 0)))
	_, err := c.Sample(ctx)
	assert.True(t, errors.Is(err, ErrNoTrack))
	assert.Equal(t, StateIdle, c.GetState())
}

func TestController_PositionFollowsClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(Config{Clock: clock})
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, newTestTrack()))
	assert.Equal(t, StatePaused, c.GetState())
	assert.Equal(t, 10000, c.Duration())

	require.NoError(t, c.PlayFrom(ctx, 1000))
	clock.Advance(2 * time.Second)
	assert.Equal(t, 3000, c.Position())
	assert.True(t, c.IsPlaying())

	require.NoError(t, c.Pause(ctx))
	clock.Advance(5 * time.Second)
	assert.Equal(t, 3000, c.Position())
	assert.True(t, errors.Is(c.Pause(ctx), ErrNotPlaying))

	require.NoError(t, c.Seek(ctx, 500))
	assert.Equal(t, 500, c.Position())
	assert.False(t, c.IsPlaying(), "seek keeps the play state")

	require.NoError(t, c.Resume(ctx))
	clock.Advance(250 * time.Millisecond)
	u, err := c.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, Update{TrackID: "t1", Position: 750, Duration: 10000, Playing: true}, u)

	assert.Equal(t, []EventType{
		EventTrackLoaded, EventStateChanged, EventStateChanged, EventSeeked, EventStateChanged,
	}, drainEvents(c))
}

func TestController_SeekClamps(t *testing.T) {
	c := NewController(Config{Clock: clockwork.NewFakeClock()})
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, newTestTrack()))

	require.NoError(t, c.Seek(ctx, -100))
	assert.Equal(t, 0, c.Position())
	require.NoError(t, c.Seek(ctx, 99999))
	assert.Equal(t, 10000, c.Position())
}

func TestController_TrackEndStopsPlayback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(Config{Clock: clock})
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, newTestTrack()))
	require.NoError(t, c.PlayFrom(ctx, 9000))

	clock.Advance(1500 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return c.GetState() == StatePaused
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 10000, c.Position())

	// Resuming an ended track starts over.
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, 0, c.Position())
}

func TestController_SeekReschedulesEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(Config{Clock: clock})
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, newTestTrack()))
	require.NoError(t, c.PlayFrom(ctx, 9000))

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.Seek(ctx, 0))
	clock.Advance(800 * time.Millisecond)

	// The timer for the old end must not stop playback.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatePlaying, c.GetState())
	assert.Equal(t, 800, c.Position())
}

func TestController_LoadResets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewController(Config{Clock: clock})
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, newTestTrack()))
	require.NoError(t, c.PlayFrom(ctx, 4000))

	next := &track.Track{ID: "t2", Duration: 3 * time.Second}
	require.NoError(t, c.Load(ctx, next))
	got, ok := c.GetCurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "t2", got.ID)
	assert.Equal(t, 0, c.Position())
	assert.False(t, c.IsPlaying())

	c.Close()
	_, ok = c.GetCurrentTrack()
	assert.False(t, ok)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Equal(t, "track_ended", EventTrackEnded.String())
}
