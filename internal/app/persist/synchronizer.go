// Package persist keeps the loop store in sync with a loop repository.
package persist

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/notification"
	domain "github.com/osa030/loopbox/internal/domain/loop"
)

// Defaults
const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Repository loads and saves loop records per (user, track).
type Repository interface {
	// LoadLoop returns nil without error when nothing is saved.
	LoadLoop(ctx context.Context, userID, trackID string) (*domain.Record, error)
	SaveLoop(ctx context.Context, userID, trackID string, rec domain.Record) error
}

// Config holds synchronizer configuration.
type Config struct {
	Debounce time.Duration // Quiet period before a save (defaults to DefaultDebounce)
	Timeout  time.Duration // Per-request timeout (defaults to DefaultTimeout)
	Clock    clockwork.Clock
}

// Synchronizer hydrates the store on track selection and saves it after
// user mutations settle. Persistence is best effort: failures are logged and
// the store keeps working offline.
type Synchronizer struct {
	ctx    context.Context
	store  *loop.Store
	repo   Repository
	config Config

	mu       sync.Mutex
	userID   string
	trackID  string
	epoch    uint64 // Incremented on every selection; stale loads compare against it
	timer    clockwork.Timer
	timerGen uint64
	subID    string

	inflight sync.WaitGroup
}

// New creates a synchronizer and subscribes it to the store's changes.
// repo may be nil, in which case nothing is loaded or saved.
func New(ctx context.Context, store *loop.Store, repo Repository, config Config) *Synchronizer {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	s := &Synchronizer{
		ctx:    ctx,
		store:  store,
		repo:   repo,
		config: config,
	}
	s.subID = store.Notifier().Subscribe(notification.StreamFunc(s.onChange))
	return s
}

// SetUser sets the user whose loops are loaded and saved.
func (s *Synchronizer) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Epoch returns the current selection epoch.
func (s *Synchronizer) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Select resets the store for trackID and starts loading its saved state.
// Any pending save for the previous track is dropped. An empty trackID
// deselects.
func (s *Synchronizer) Select(trackID string, durationMs int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.cancelTimerLocked()
	s.trackID = trackID
	s.store.Reset(trackID, durationMs)

	if trackID == "" {
		return s.epoch
	}
	if s.repo == nil || s.userID == "" {
		s.store.Hydrate(trackID, domain.Hydration{})
		return s.epoch
	}

	s.store.BeginHydration(trackID)
	epoch, userID := s.epoch, s.userID
	s.inflight.Add(1)
	go s.load(epoch, userID, trackID)
	return epoch
}

// Deselect discards the store state and any pending save.
func (s *Synchronizer) Deselect() {
	s.Select("", 0)
}

// Flush saves immediately if a save is pending.
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	if s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.cancelTimerLocked()
	epoch, userID, trackID := s.epoch, s.userID, s.trackID
	s.mu.Unlock()

	s.save(epoch, userID, trackID)
}

// Wait blocks until in-flight loads have finished.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

// Close unsubscribes from the store and drops any pending save.
func (s *Synchronizer) Close() {
	s.store.Notifier().Unsubscribe(s.subID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.cancelTimerLocked()
}

func (s *Synchronizer) load(epoch uint64, userID, trackID string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.config.Timeout)
	defer cancel()

	rec, err := s.repo.LoadLoop(ctx, userID, trackID)
	if err != nil {
		zlog.Warn().Msgf("persist: load %s failed: %v", trackID, err)
	}

	var h domain.Hydration
	if rec != nil {
		if upgraded, ok := rec.Upgrade(domain.NewID); ok {
			h = upgraded
		}
	}

	// Hold the lock so a selection cannot slip in between the epoch check
	// and the hydration.
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		zlog.Debug().Msgf("persist: discarded stale load for %s", trackID)
		return
	}
	s.store.Hydrate(trackID, h)
	zlog.Debug().Msgf("persist: hydrated %s with %d segment(s)", trackID, len(h.Segments))
}

// onChange is called synchronously by the store. Only user mutations schedule
// a save; reset and hydrated changes return before taking the lock because
// they are raised while Select or load already hold it.
func (s *Synchronizer) onChange(n *notification.Notification) error {
	if n.Kind != notification.KindMutated {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil || s.userID == "" || s.trackID == "" || n.TrackID != s.trackID {
		return nil
	}

	s.cancelTimerLocked()
	gen := s.timerGen
	epoch, userID, trackID := s.epoch, s.userID, s.trackID
	s.timer = s.config.Clock.AfterFunc(s.config.Debounce, func() {
		s.mu.Lock()
		if gen != s.timerGen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()

		s.save(epoch, userID, trackID)
	})
	return nil
}

func (s *Synchronizer) save(epoch uint64, userID, trackID string) {
	if s.Epoch() != epoch || s.store.TrackID() != trackID {
		return
	}
	rec := s.store.Record()

	ctx, cancel := context.WithTimeout(s.ctx, s.config.Timeout)
	defer cancel()

	if err := s.repo.SaveLoop(ctx, userID, trackID, rec); err != nil {
		zlog.Warn().Msgf("persist: save %s failed: %v", trackID, err)
		return
	}
	zlog.Debug().Msgf("persist: saved %s (%d segment(s))", trackID, len(rec.Segments))
}

func (s *Synchronizer) cancelTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
