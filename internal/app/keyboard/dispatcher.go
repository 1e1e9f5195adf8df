package keyboard

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/app/loop"
	"github.com/osa030/loopbox/internal/app/playback"
)

// Command is a loop command bound to a key.
type Command int

const (
	CommandNone Command = iota
	CommandMarkStart
	CommandMarkEnd
	CommandToggleLoop
	CommandPlayFromStart
	CommandNudgeStart
	CommandNudgeEnd
	CommandSelectPrevious
	CommandSelectNext
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandMarkStart:
		return "mark_start"
	case CommandMarkEnd:
		return "mark_end"
	case CommandToggleLoop:
		return "toggle_loop"
	case CommandPlayFromStart:
		return "play_from_start"
	case CommandNudgeStart:
		return "nudge_start"
	case CommandNudgeEnd:
		return "nudge_end"
	case CommandSelectPrevious:
		return "select_previous"
	case CommandSelectNext:
		return "select_next"
	default:
		return "none"
	}
}

// Steps are the nudge sizes in milliseconds.
type Steps struct {
	Fine   int // Plain arrow
	Coarse int // Shift+arrow
}

// DefaultSteps are the nudge sizes used when none are configured.
var DefaultSteps = Steps{Fine: 50, Coarse: 250}

// Action is a resolved key press.
type Action struct {
	Command Command
	Delta   int // Nudge amount for the nudge commands
}

// Resolve maps a key press to an action without touching any state.
func Resolve(ev Event, steps Steps) Action {
	if ev.InTextInput {
		return Action{}
	}

	switch ev.Key {
	case KeyS:
		return Action{Command: CommandMarkStart}
	case KeyE:
		return Action{Command: CommandMarkEnd}
	case KeyL:
		return Action{Command: CommandToggleLoop}
	case KeyP:
		return Action{Command: CommandPlayFromStart}
	case KeyLeft, KeyRight:
		direction := 1
		if ev.Key == KeyLeft {
			direction = -1
		}
		if ev.Mods.Alt {
			if direction < 0 {
				return Action{Command: CommandSelectPrevious}
			}
			return Action{Command: CommandSelectNext}
		}
		step := steps.Fine
		if ev.Mods.Shift {
			step = steps.Coarse
		}
		if ev.Mods.Ctrl || ev.Mods.Meta {
			return Action{Command: CommandNudgeEnd, Delta: direction * step}
		}
		return Action{Command: CommandNudgeStart, Delta: direction * step}
	}
	return Action{}
}

// Player starts playback at a position.
type Player interface {
	PlayFrom(ctx context.Context, ms int) error
}

// Handler receives key presses from a Surface.
type Handler interface {
	HandleKey(ev Event) bool
}

// Dispatcher runs key commands against the loop store. State is read when
// the key is handled, never captured earlier.
type Dispatcher struct {
	ctx    context.Context
	store  *loop.Store
	player Player
	steps  Steps
}

// NewDispatcher creates a dispatcher. Zero steps use DefaultSteps.
func NewDispatcher(ctx context.Context, store *loop.Store, player Player, steps Steps) *Dispatcher {
	if steps.Fine <= 0 {
		steps.Fine = DefaultSteps.Fine
	}
	if steps.Coarse <= 0 {
		steps.Coarse = DefaultSteps.Coarse
	}
	return &Dispatcher{ctx: ctx, store: store, player: player, steps: steps}
}

// HandleKey runs the command bound to ev and reports whether the key was bound.
// Command failures are logged; they never surface to the caller.
func (d *Dispatcher) HandleKey(ev Event) bool {
	cmd, err := d.Handle(ev)
	if err != nil {
		zlog.Debug().Msgf("keyboard: %s: %v", cmd, err)
	}
	return cmd != CommandNone
}

// Handle runs the command bound to ev and returns it with the command's error.
func (d *Dispatcher) Handle(ev Event) (Command, error) {
	action := Resolve(ev, d.steps)

	switch action.Command {
	case CommandMarkStart:
		return action.Command, d.store.MarkStartAtCurrentPosition()

	case CommandMarkEnd:
		_, err := d.store.MarkEndAtCurrentPosition()
		return action.Command, err

	case CommandToggleLoop:
		return action.Command, d.store.SetEnabled(!d.store.Snapshot().Enabled)

	case CommandPlayFromStart:
		start := d.store.Snapshot().PendingStart
		if start == nil {
			return action.Command, loop.ErrNoPendingValue
		}
		return action.Command, d.play(*start)

	case CommandNudgeStart:
		return action.Command, d.store.NudgeStart(action.Delta)

	case CommandNudgeEnd:
		return action.Command, d.store.NudgeEnd(action.Delta)

	case CommandSelectPrevious, CommandSelectNext:
		direction := 1
		if action.Command == CommandSelectPrevious {
			direction = -1
		}
		seg, err := d.store.SelectAdjacent(direction)
		if err != nil {
			return action.Command, err
		}
		return action.Command, d.play(seg.Start)
	}
	return CommandNone, nil
}

func (d *Dispatcher) play(ms int) error {
	err := d.player.PlayFrom(d.ctx, ms)
	if playback.IsCannotPlay(err) {
		zlog.Debug().Msgf("keyboard: play from %d skipped: %v", ms, err)
		return nil
	}
	return errors.Wrapf(err, "play from %d", ms)
}

// Surface delivers key presses to at most one registered handler.
type Surface interface {
	Register(h Handler) (unregister func())
}

// Router is a Surface fed by an input source such as a terminal.
type Router struct {
	mu      sync.Mutex
	handler Handler
	gen     uint64
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register installs h, replacing any previous handler. The returned func
// removes h if it is still the registered handler.
func (r *Router) Register(h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	gen := r.gen
	r.handler = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen == gen {
			r.handler = nil
		}
	}
}

// Dispatch forwards ev to the registered handler and reports whether it was handled.
func (r *Router) Dispatch(ev Event) bool {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()

	if h == nil {
		return false
	}
	return h.HandleKey(ev)
}

// Registered reports whether a handler is installed.
func (r *Router) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}
