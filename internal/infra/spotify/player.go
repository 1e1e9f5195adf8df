package spotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/loopbox/internal/app/playback"
	"github.com/osa030/loopbox/internal/domain/track"
)

// PlayerSettings configures the Spotify transport. Decoded from the
// playback.transport.settings map.
type PlayerSettings struct {
	DeviceID string `mapstructure:"device_id"`
}

// Player drives playback on a Spotify Connect device through the Web API.
// Between samples the position is extrapolated from the last known state.
type Player struct {
	client   *Client
	deviceID *spotify.ID
	clock    clockwork.Clock

	mu         sync.RWMutex
	track      *track.Track
	started    bool // The loaded track has been sent to the device
	playing    bool
	position   int
	duration   int
	sampledAt  time.Time
	remoteItem string
}

// NewPlayer creates a player. clock may be nil.
func NewPlayer(client *Client, settings PlayerSettings, clock clockwork.Clock) *Player {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p := &Player{client: client, clock: clock}
	if settings.DeviceID != "" {
		id := spotify.ID(settings.DeviceID)
		p.deviceID = &id
	}
	return p
}

// Load selects the track to control. Nothing is sent to the device until
// the first PlayFrom.
func (p *Player) Load(_ context.Context, t *track.Track) error {
	if t == nil || t.URI == "" {
		return errors.Wrap(playback.ErrCannotPlay, "track has no uri")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = t
	p.started = false
	p.playing = false
	p.position = 0
	p.duration = t.DurationMs()
	p.sampledAt = p.clock.Now()
	return nil
}

// PlayFrom starts playback of the loaded track at ms.
func (p *Player) PlayFrom(ctx context.Context, ms int) error {
	p.mu.RLock()
	t, started := p.track, p.started
	p.mu.RUnlock()
	if t == nil {
		return errors.Wrap(playback.ErrCannotPlay, "no track loaded")
	}

	if !started {
		if err := p.client.retry(ctx, func() error {
			return p.client.client.PlayOpt(ctx, &spotify.PlayOptions{
				DeviceID: p.deviceID,
				URIs:     []spotify.URI{spotify.URI(t.URI)},
			})
		}); err != nil {
			return p.wrap(err, "play")
		}
	}
	if err := p.client.retry(ctx, func() error {
		return p.client.client.SeekOpt(ctx, ms, &spotify.PlayOptions{DeviceID: p.deviceID})
	}); err != nil {
		return p.wrap(err, "seek")
	}
	if started {
		if err := p.client.retry(ctx, func() error {
			return p.client.client.PlayOpt(ctx, &spotify.PlayOptions{DeviceID: p.deviceID})
		}); err != nil {
			return p.wrap(err, "resume")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.playing = true
	p.position = ms
	p.sampledAt = p.clock.Now()
	return nil
}

// Seek moves the playhead without changing the play state.
func (p *Player) Seek(ctx context.Context, ms int) error {
	p.mu.RLock()
	t, started := p.track, p.started
	p.mu.RUnlock()
	if t == nil || !started {
		return errors.Wrap(playback.ErrCannotPlay, "track not started")
	}

	if err := p.client.retry(ctx, func() error {
		return p.client.client.SeekOpt(ctx, ms, &spotify.PlayOptions{DeviceID: p.deviceID})
	}); err != nil {
		return p.wrap(err, "seek")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = ms
	p.sampledAt = p.clock.Now()
	return nil
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	if err := p.client.retry(ctx, func() error {
		return p.client.client.PauseOpt(ctx, &spotify.PlayOptions{DeviceID: p.deviceID})
	}); err != nil {
		return p.wrap(err, "pause")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.positionLocked()
	p.playing = false
	p.sampledAt = p.clock.Now()
	return nil
}

// Resume resumes playback, starting the loaded track if needed.
func (p *Player) Resume(ctx context.Context) error {
	p.mu.RLock()
	started, pos := p.started, p.positionLocked()
	p.mu.RUnlock()
	if !started {
		return p.PlayFrom(ctx, pos)
	}

	if err := p.client.retry(ctx, func() error {
		return p.client.client.PlayOpt(ctx, &spotify.PlayOptions{DeviceID: p.deviceID})
	}); err != nil {
		return p.wrap(err, "resume")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.sampledAt = p.clock.Now()
	return nil
}

// Position returns the extrapolated position in milliseconds.
func (p *Player) Position() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionLocked()
}

// Duration returns the loaded track's duration in milliseconds.
func (p *Player) Duration() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration
}

// IsPlaying reports whether the device was playing at the last sample.
func (p *Player) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing
}

// Sample reads the device state. A device playing some other item reports
// as not playing for the loaded track.
func (p *Player) Sample(ctx context.Context) (playback.Update, error) {
	p.mu.RLock()
	t := p.track
	p.mu.RUnlock()
	if t == nil {
		return playback.Update{}, errors.Wrap(playback.ErrCannotPlay, "no track loaded")
	}

	state, err := p.client.client.PlayerState(ctx)
	if err != nil {
		return playback.Update{}, p.wrap(err, "player state")
	}
	if state == nil || state.Item == nil {
		return playback.Update{}, errors.Wrap(playback.ErrCannotPlay, "nothing playing")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteItem = string(state.Item.ID)
	if p.remoteItem != t.ID {
		p.playing = false
		return playback.Update{TrackID: t.ID, Position: p.positionLocked(), Duration: p.duration}, nil
	}
	p.started = true
	p.playing = state.Playing
	p.position = int(state.Progress)
	if d := int(state.Item.Duration); d > 0 {
		p.duration = d
	}
	p.sampledAt = p.clock.Now()
	return playback.Update{
		TrackID:  t.ID,
		Position: p.position,
		Duration: p.duration,
		Playing:  p.playing,
	}, nil
}

func (p *Player) positionLocked() int {
	pos := p.position
	if p.playing {
		pos += int(p.clock.Since(p.sampledAt) / time.Millisecond)
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

// wrap maps "no active device" and permission failures to ErrCannotPlay.
func (p *Player) wrap(err error, op string) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound, http.StatusForbidden:
			return errors.Wrapf(playback.ErrCannotPlay, "%s: %s", op, apiErr.Message)
		}
	}
	return errors.Wrapf(err, "failed to %s", op)
}

var _ playback.Transport = (*Player)(nil)
