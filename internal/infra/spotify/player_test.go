package spotify

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/loopbox/internal/app/playback"
	"github.com/osa030/loopbox/internal/domain/track"
)

func testTrack() *track.Track {
	return &track.Track{ID: "abc", URI: "spotify:track:abc", Duration: 200 * time.Second}
}

func TestPlayer_Lifecycle(t *testing.T) {
	var playBodies []string
	var seeks []string
	state := `{"is_playing": true, "progress_ms": 8000, "item": {"id": "abc", "duration_ms": 201000}}`

	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/player/play":
			body, _ := io.ReadAll(r.Body)
			playBodies = append(playBodies, string(body))
			assert.Equal(t, "device-1", r.URL.Query().Get("device_id"))
			w.WriteHeader(http.StatusNoContent)
		case "/me/player/seek":
			seeks = append(seeks, r.URL.Query().Get("position_ms"))
			w.WriteHeader(http.StatusNoContent)
		case "/me/player/pause":
			w.WriteHeader(http.StatusNoContent)
		case "/me/player":
			_, _ = w.Write([]byte(state))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	clock := clockwork.NewFakeClock()
	p := NewPlayer(c, PlayerSettings{DeviceID: "device-1"}, clock)
	ctx := context.Background()

	require.NoError(t, p.Load(ctx, testTrack()))
	assert.Equal(t, 200000, p.Duration())
	assert.False(t, p.IsPlaying())

	require.NoError(t, p.PlayFrom(ctx, 5000))
	require.Len(t, playBodies, 1)
	assert.Contains(t, playBodies[0], "spotify:track:abc")
	assert.Equal(t, []string{"5000"}, seeks)
	assert.True(t, p.IsPlaying())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 7000, p.Position(), "position is extrapolated between samples")

	u, err := p.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, playback.Update{TrackID: "abc", Position: 8000, Duration: 201000, Playing: true}, u)

	require.NoError(t, p.Pause(ctx))
	assert.False(t, p.IsPlaying())
	clock.Advance(time.Second)
	assert.Equal(t, 8000, p.Position())

	require.NoError(t, p.Seek(ctx, 1000))
	assert.Equal(t, 1000, p.Position())

	require.NoError(t, p.PlayFrom(ctx, 3000))
	assert.Len(t, playBodies, 2, "already started track resumes without a uri")
	assert.NotContains(t, playBodies[1], "spotify:track:abc")

	assert.Equal(t, []string{
		"PUT /me/player/play",
		"PUT /me/player/seek",
		"GET /me/player",
		"PUT /me/player/pause",
		"PUT /me/player/seek",
		"PUT /me/player/seek",
		"PUT /me/player/play",
	}, api.calls())
}

func TestPlayer_NoActiveDeviceCannotPlay(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, "Player command failed: No active device found")
	})
	p := NewPlayer(c, PlayerSettings{}, clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, p.Load(ctx, testTrack()))
	err := p.PlayFrom(ctx, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, playback.ErrCannotPlay))
	assert.True(t, playback.IsCannotPlay(err))
	assert.False(t, p.IsPlaying())
}

func TestPlayer_NotLoaded(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	p := NewPlayer(c, PlayerSettings{}, nil)
	ctx := context.Background()

	assert.True(t, playback.IsCannotPlay(p.PlayFrom(ctx, 0)))
	assert.True(t, playback.IsCannotPlay(p.Seek(ctx, 0)))
	_, err := p.Sample(ctx)
	assert.True(t, playback.IsCannotPlay(err))
	assert.True(t, playback.IsCannotPlay(p.Load(ctx, &track.Track{ID: "x"})))
	assert.Empty(t, api.calls())
}

func TestPlayer_SampleOtherItem(t *testing.T) {
	state := `{"is_playing": true, "progress_ms": 1000, "item": {"id": "other", "duration_ms": 1000}}`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/player" {
			_, _ = w.Write([]byte(state))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	p := NewPlayer(c, PlayerSettings{}, clockwork.NewFakeClock())
	ctx := context.Background()
	require.NoError(t, p.Load(ctx, testTrack()))
	require.NoError(t, p.PlayFrom(ctx, 4000))

	u, err := p.Sample(ctx)
	require.NoError(t, err)
	assert.False(t, u.Playing)
	assert.Equal(t, "abc", u.TrackID)
	assert.Equal(t, 4000, u.Position)
	assert.Equal(t, 200000, u.Duration)

	state = `{}`
	_, err = p.Sample(ctx)
	assert.True(t, playback.IsCannotPlay(err))
}
