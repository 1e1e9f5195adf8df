// Package session provides the practice session manager.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/enforce"
	"github.com/osa030/loopbox/internal/app/interaction"
	"github.com/osa030/loopbox/internal/app/keyboard"
	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/persist"
	"github.com/osa030/loopbox/internal/app/playback"
	"github.com/osa030/loopbox/internal/app/recent"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/config"
	"github.com/osa030/loopbox/internal/infra/metrics"
)

var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrNoTrackSelected = errors.New("no track selected")
	ErrInvalidTrack    = errors.New("track id is required")
)

// Options holds the session's collaborators.
type Options struct {
	Transport playback.Transport // Required
	Loops     persist.Repository // nil keeps loops in memory only
	Recent    recent.Repository  // nil keeps the recent list in memory only
	Keys      keyboard.Surface   // Defaults to a new keyboard.Router
	Window    interaction.Window // nil disables pointer interaction
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
}

// Manager runs one user's practice session: the selected track, its loop
// segments and everything that reacts to playback.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config
	userID string
	clock  clockwork.Clock

	// Components
	transport playback.Transport
	store     *loop.Store
	monitor   *enforce.Monitor
	sync      *persist.Synchronizer
	recent    *recent.Tracker
	keys      keyboard.Surface
	window    interaction.Window
	metrics   *metrics.Metrics

	// Current selection
	track     *track.Track
	selCancel context.CancelFunc
	pointer   *interaction.Controller
	unbind    func()

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewManager creates a session manager for cfg.Client.UserID.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Keys == nil {
		opts.Keys = keyboard.NewRouter()
	}

	ctx, cancel := context.WithCancel(context.Background())
	userID := cfg.Client.UserID
	transport := opts.Transport

	m := &Manager{
		config:    cfg,
		userID:    userID,
		clock:     opts.Clock,
		transport: transport,
		keys:      opts.Keys,
		window:    opts.Window,
		metrics:   opts.Metrics,
		recent:    recent.NewTracker(opts.Recent, userID),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.store = loop.NewStore(loop.Options{Position: transport.Position})
	m.monitor = enforce.NewMonitor(m.store, transport, enforce.Config{
		Gap:    cfg.Loop.RepetitionGap(),
		Clock:  opts.Clock,
		OnFire: m.onFire,
	})
	m.sync = persist.New(ctx, m.store, opts.Loops, persist.Config{
		Debounce: cfg.Loop.SaveDebounce(),
		Clock:    opts.Clock,
	})
	m.sync.SetUser(userID)

	return m, nil
}

// Start loads the user's recent tracks.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.recent.Load(ctx); err != nil {
		zlog.Warn().Msgf("Failed to load recent tracks: %v", err)
	}
	zlog.Info().Msgf("Session started: user=%s recent=%d", m.userID, len(m.recent.Tracks()))
	return nil
}

// Store returns the loop segment store.
func (m *Manager) Store() *loop.Store {
	return m.store
}

// Transport returns the playback transport.
func (m *Manager) Transport() playback.Transport {
	return m.transport
}

// RecentTracks returns the user's recently selected tracks.
func (m *Manager) RecentTracks() []track.Track {
	return m.recent.Tracks()
}

// Track returns the selected track.
func (m *Manager) Track() (*track.Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.track == nil {
		return nil, false
	}
	t := *m.track
	return &t, true
}

// Pointer returns the timeline controller of the current selection, or nil
// when nothing is selected or no window is attached.
func (m *Manager) Pointer() *interaction.Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointer
}

// SelectTrack makes t the current track. Everything bound to the previous
// selection is torn down first, so late callbacks from it cannot touch the
// new track's state.
func (m *Manager) SelectTrack(ctx context.Context, t *track.Track) error {
	if t == nil || t.ID == "" {
		return ErrInvalidTrack
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.teardownLocked()

	if err := m.transport.Load(ctx, t); err != nil {
		if !playback.IsCannotPlay(err) {
			m.sync.Deselect()
			m.mu.Unlock()
			return errors.Wrapf(err, "failed to load track %s", t.ID)
		}
		zlog.Debug().Msgf("Track %s cannot be played, editing only: %v", t.ID, err)
	}

	selected := *t
	m.track = &selected
	m.sync.Select(t.ID, t.DurationMs())

	selCtx, cancel := context.WithCancel(m.ctx)
	m.selCancel = cancel
	dispatcher := keyboard.NewDispatcher(selCtx, m.store, m.transport, keyboard.Steps{
		Fine:   m.config.Loop.NudgeStepMs,
		Coarse: m.config.Loop.NudgeCoarseStepMs,
	})
	m.unbind = m.keys.Register(dispatcher)
	if m.window != nil {
		m.pointer = interaction.NewController(selCtx, m.store, m.transport, m.window, interaction.Config{
			DragThresholdPx: m.config.Loop.DragThresholdPx,
			DragReset:       m.config.Loop.DragReset(),
			MagnifierHide:   m.config.Loop.MagnifierHide(),
			Clock:           m.clock,
		})
	}
	m.mu.Unlock()

	zlog.Info().Msgf("Track selected: id=%s name=%q", t.ID, t.Name)

	if err := m.recent.Add(ctx, selected); err != nil {
		zlog.Warn().Msgf("Failed to record recent track %s: %v", t.ID, err)
	}
	return nil
}

// Deselect clears the current track. Pending saves are dropped.
func (m *Manager) Deselect(ctx context.Context) {
	m.mu.Lock()
	hadTrack := m.track != nil
	m.teardownLocked()
	m.sync.Deselect()
	m.mu.Unlock()

	if !hadTrack {
		return
	}
	if err := m.transport.Pause(ctx); err != nil && !playback.IsCannotPlay(err) && !errors.Is(err, playback.ErrNotPlaying) {
		zlog.Debug().Msgf("Pause on deselect failed: %v", err)
	}
	zlog.Info().Msg("Track deselected")
}

// Run samples the transport and enforces the active loop until ctx is
// cancelled or the session is closed.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	poller := playback.NewPoller(m.transport, m.config.Playback.PollInterval(), m.clock)
	go poller.Run(ctx)

	for u := range poller.Updates() {
		m.HandleUpdate(ctx, u)
	}
	return nil
}

// HandleUpdate applies one playback sample and reports whether the loop seeked.
// Samples for a track other than the selected one are ignored.
func (m *Manager) HandleUpdate(ctx context.Context, u playback.Update) bool {
	trackID := m.store.TrackID()
	if trackID == "" || (u.TrackID != "" && u.TrackID != trackID) {
		return false
	}
	if u.Duration > 0 {
		m.store.SetDuration(u.Duration)
	}
	return m.monitor.Evaluate(ctx, u)
}

// Flush saves pending loop changes immediately.
func (m *Manager) Flush() {
	m.sync.Flush()
}

// Done returns a channel closed when the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close saves pending changes and stops the session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.teardownLocked()
	m.mu.Unlock()

	m.sync.Flush()
	m.sync.Close()
	m.sync.Wait()
	m.store.Notifier().Close()
	m.cancel()
	close(m.done)
	zlog.Info().Msg("Session closed")
}

func (m *Manager) onFire(segmentID string) {
	m.metrics.ObserveFire()
	zlog.Debug().Msgf("Loop repeated: segment=%s", segmentID)
}

// teardownLocked releases everything bound to the current selection.
func (m *Manager) teardownLocked() {
	if m.selCancel != nil {
		m.selCancel()
		m.selCancel = nil
	}
	if m.unbind != nil {
		m.unbind()
		m.unbind = nil
	}
	if m.pointer != nil {
		m.pointer.Close()
		m.pointer = nil
	}
	m.monitor.Reset()
	m.track = nil
}
