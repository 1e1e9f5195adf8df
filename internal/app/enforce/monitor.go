// Package enforce provides the loop enforcement monitor.
package enforce

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/playback"
)

// DefaultGap is the minimum real time between two enforced repetitions.
const DefaultGap = 500 * time.Millisecond

// Seeker moves the playback position.
type Seeker interface {
	Seek(ctx context.Context, ms int) error
}

// Config holds monitor configuration.
type Config struct {
	Gap   time.Duration   // Minimum time between repetitions (defaults to DefaultGap)
	Clock clockwork.Clock // Defaults to the real clock

	// OnFire is called after each counted repetition.
	OnFire func(segmentID string)
}

// Monitor seeks back to the active segment's start whenever playback is at or
// past its end. Only the repetition count is gated by Gap, so the stale samples
// observed right after a seek re-seek but do not count twice.
type Monitor struct {
	store  *loop.Store
	seeker Seeker
	config Config

	mu       sync.Mutex
	lastFire time.Time
}

// NewMonitor creates a new monitor.
func NewMonitor(store *loop.Store, seeker Seeker, config Config) *Monitor {
	if config.Gap <= 0 {
		config.Gap = DefaultGap
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Monitor{
		store:  store,
		seeker: seeker,
		config: config,
	}
}

// Evaluate checks one position update and reports whether it seeked.
func (m *Monitor) Evaluate(ctx context.Context, u playback.Update) bool {
	if !u.Playing {
		return false
	}

	snap := m.store.Snapshot()
	if snap.Phase != loop.PhaseReady || !snap.Looping() {
		return false
	}
	if u.TrackID != "" && u.TrackID != snap.TrackID {
		return false
	}
	seg, _ := snap.Active()
	if u.Position < seg.End {
		return false
	}

	if err := m.seeker.Seek(ctx, seg.Start); err != nil {
		if playback.IsCannotPlay(err) {
			zlog.Debug().Msgf("enforce: seek to %d skipped: %v", seg.Start, err)
		} else {
			zlog.Warn().Msgf("enforce: seek to %d failed: %v", seg.Start, err)
		}
		return false
	}

	if !m.gate() {
		return true
	}
	if err := m.store.IncrementRepetitions(seg.ID); err != nil {
		zlog.Debug().Msgf("enforce: repetition not counted: %v", err)
	}
	zlog.Debug().Msgf("enforce: %s reached %d at %d, back to %d", seg.Label, seg.End, u.Position, seg.Start)

	if m.config.OnFire != nil {
		m.config.OnFire(seg.ID)
	}
	return true
}

// gate reports whether a repetition may be counted now, and arms it if so.
func (m *Monitor) gate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.config.Clock.Now()
	if !m.lastFire.IsZero() && now.Sub(m.lastFire) < m.config.Gap {
		return false
	}
	m.lastFire = now
	return true
}

// Reset clears the repetition gate, for a new track.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFire = time.Time{}
}
