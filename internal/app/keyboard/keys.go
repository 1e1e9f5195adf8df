// Package keyboard maps key presses to loop commands.
package keyboard

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Key is a key the dispatcher understands.
type Key int

const (
	KeyOther Key = iota
	KeyS
	KeyE
	KeyL
	KeyP
	KeyLeft
	KeyRight
)

// String returns the string representation of the key.
func (k Key) String() string {
	switch k {
	case KeyS:
		return "s"
	case KeyE:
		return "e"
	case KeyL:
		return "l"
	case KeyP:
		return "p"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	default:
		return "other"
	}
}

// Modifiers are the modifier keys held during a press.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Meta  bool
	Alt   bool
}

// Event is one key press.
type Event struct {
	Key  Key
	Mods Modifiers

	// InTextInput is set when focus is inside an editable field.
	InTextInput bool
}

// ParseEvent parses a chord such as "s", "shift+left" or "ctrl+right".
func ParseEvent(chord string) (Event, error) {
	var ev Event
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "+")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i < len(parts)-1 {
			switch part {
			case "shift":
				ev.Mods.Shift = true
			case "ctrl", "control":
				ev.Mods.Ctrl = true
			case "cmd", "meta", "super":
				ev.Mods.Meta = true
			case "alt", "opt", "option":
				ev.Mods.Alt = true
			default:
				return Event{}, errors.Newf("unknown modifier %q in %q", part, chord)
			}
			continue
		}

		switch part {
		case "s":
			ev.Key = KeyS
		case "e":
			ev.Key = KeyE
		case "l":
			ev.Key = KeyL
		case "p":
			ev.Key = KeyP
		case "left", "arrowleft", "←":
			ev.Key = KeyLeft
		case "right", "arrowright", "→":
			ev.Key = KeyRight
		default:
			return Event{}, errors.Newf("unknown key %q", chord)
		}
	}
	return ev, nil
}
