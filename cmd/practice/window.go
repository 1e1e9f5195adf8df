package main

import (
	"sync"

	"github.com/osa030/loopbox/internal/app/interaction"
)

// termWindow routes simulated pointer events from the shell to the gesture
// that currently holds the capture.
type termWindow struct {
	mu      sync.Mutex
	handler interaction.Handler
	gen     uint64
}

func newTermWindow() *termWindow {
	return &termWindow{}
}

// Capture implements interaction.Window.
func (w *termWindow) Capture(h interaction.Handler) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	gen := w.gen
	w.handler = h
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.gen == gen {
			w.handler = nil
		}
	}
}

func (w *termWindow) current() interaction.Handler {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handler
}

func (w *termWindow) move(x float64) {
	if h := w.current(); h != nil {
		h.PointerMove(x)
	}
}

func (w *termWindow) up() {
	if h := w.current(); h != nil {
		h.PointerUp()
	}
}
