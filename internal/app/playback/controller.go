package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack    = errors.Wrap(ErrCannotPlay, "no track loaded")
	ErrNotPlaying = errors.New("not playing")
	ErrNotPaused  = errors.New("not paused")
)

// Config holds controller configuration.
type Config struct {
	Clock clockwork.Clock // Defaults to the real clock
}

// Controller is a simulated transport: a single track whose position advances
// with the clock while playing. It backs offline practice and tests.
type Controller struct {
	mu sync.RWMutex

	// Current track state
	currentTrack *track.Track
	state        State
	basePosition int       // Position at startTime, ms
	startTime    time.Time // When playback last (re)started

	// Timer
	timerCancel func() // Cancel function for track end timer
	timerGen    uint64 // Invalidates end timers that fire after being replaced

	clock clockwork.Clock

	// Events
	eventCh chan Event

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new simulated playback controller.
func NewController(config Config) *Controller {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:   StateIdle,
		clock:   config.Clock,
		eventCh: make(chan Event, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Load replaces the current track and positions it at zero, paused.
func (c *Controller) Load(_ context.Context, t *track.Track) error {
	if t == nil {
		return errors.Wrap(ErrCannotPlay, "nil track")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	loaded := *t
	c.currentTrack = &loaded
	c.state = StatePaused
	c.basePosition = 0
	c.startTime = c.clock.Now()

	zlog.Debug().Msgf("playback: loaded %s (%s) duration=%v", loaded.Name, loaded.ID, loaded.Duration)
	c.sendEventLocked(EventTrackLoaded)
	return nil
}

// PlayFrom seeks to ms and starts playing.
func (c *Controller) PlayFrom(_ context.Context, ms int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentTrack == nil {
		return ErrNoTrack
	}
	c.basePosition = c.clampLocked(ms)
	c.startTime = c.clock.Now()
	c.state = StatePlaying
	c.startTrackTimerLocked()

	c.sendEventLocked(EventStateChanged)
	return nil
}

// Seek moves the position without changing the play state.
func (c *Controller) Seek(_ context.Context, ms int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentTrack == nil {
		return ErrNoTrack
	}
	c.basePosition = c.clampLocked(ms)
	c.startTime = c.clock.Now()
	if c.state == StatePlaying {
		c.startTrackTimerLocked()
	}

	c.sendEventLocked(EventSeeked)
	return nil
}

// Pause pauses the current playback.
func (c *Controller) Pause(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentTrack == nil {
		return ErrNoTrack
	}
	if c.state != StatePlaying {
		return ErrNotPlaying
	}

	c.stopTimerLocked()
	c.basePosition = c.positionLocked()
	c.startTime = c.clock.Now()
	c.state = StatePaused

	c.sendEventLocked(EventStateChanged)
	return nil
}

// Resume resumes paused playback. A track paused at its end restarts from zero.
func (c *Controller) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentTrack == nil {
		return ErrNoTrack
	}
	if c.state != StatePaused {
		return ErrNotPaused
	}

	if c.basePosition >= c.durationLocked() {
		c.basePosition = 0
	}
	c.startTime = c.clock.Now()
	c.state = StatePlaying
	c.startTrackTimerLocked()

	c.sendEventLocked(EventStateChanged)
	return nil
}

// Stop unloads the track.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.currentTrack = nil
	c.state = StateIdle
	c.basePosition = 0
}

// GetState returns the current playback state.
func (c *Controller) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetCurrentTrack returns the loaded track.
func (c *Controller) GetCurrentTrack() (*track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.currentTrack == nil {
		return nil, false
	}
	t := *c.currentTrack
	return &t, true
}

// Position returns the current position in milliseconds.
func (c *Controller) Position() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positionLocked()
}

// Duration returns the loaded track duration in milliseconds.
func (c *Controller) Duration() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.durationLocked()
}

// IsPlaying reports whether the track is playing.
func (c *Controller) IsPlaying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StatePlaying
}

// Sample returns the current position.
func (c *Controller) Sample(_ context.Context) (Update, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.currentTrack == nil {
		return Update{}, ErrNoTrack
	}
	return c.updateLocked(), nil
}

// Close closes the controller and releases resources.
func (c *Controller) Close() {
	c.cancel()
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.eventCh)
}

func (c *Controller) positionLocked() int {
	if c.currentTrack == nil {
		return 0
	}
	pos := c.basePosition
	if c.state == StatePlaying {
		pos += int(c.clock.Since(c.startTime) / time.Millisecond)
	}
	return c.clampLocked(pos)
}

func (c *Controller) durationLocked() int {
	if c.currentTrack == nil {
		return 0
	}
	return c.currentTrack.DurationMs()
}

func (c *Controller) clampLocked(ms int) int {
	if ms < 0 {
		return 0
	}
	if d := c.durationLocked(); ms > d {
		return d
	}
	return ms
}

func (c *Controller) updateLocked() Update {
	u := Update{
		Position: c.positionLocked(),
		Duration: c.durationLocked(),
		Playing:  c.state == StatePlaying,
	}
	if c.currentTrack != nil {
		u.TrackID = c.currentTrack.ID
	}
	return u
}

// onTrackEnd is called when the end timer fires.
func (c *Controller) onTrackEnd(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.currentTrack == nil || c.state != StatePlaying {
		return
	}
	c.timerCancel = nil
	c.basePosition = c.durationLocked()
	c.startTime = c.clock.Now()
	c.state = StatePaused

	zlog.Debug().Msgf("playback: track ended: %s", c.currentTrack.Name)
	c.sendEventLocked(EventTrackEnded)
}

// startTrackTimerLocked schedules the end of the track from the current position.
func (c *Controller) startTrackTimerLocked() {
	c.stopTimerLocked()

	remaining := time.Duration(c.durationLocked()-c.basePosition) * time.Millisecond
	gen := c.timerGen
	t := c.clock.AfterFunc(remaining, func() {
		c.onTrackEnd(gen)
	})
	c.timerCancel = func() { t.Stop() }
}

func (c *Controller) stopTimerLocked() {
	c.timerGen++
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(t EventType) {
	if c.ctx.Err() != nil {
		// Closed, the channel may already be closed too
		return
	}
	e := Event{Type: t, State: c.state, Update: c.updateLocked()}
	select {
	case c.eventCh <- e:
		// Successfully sent
	default:
		// Channel full, drop event
	}
}

var _ Transport = (*Controller)(nil)
