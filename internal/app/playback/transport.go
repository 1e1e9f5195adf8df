// Package playback provides the playback transport abstraction, a simulated
// wall-clock transport and a position poller.
package playback

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/track"
)

// ErrCannotPlay is returned by a transport that cannot act right now
// (no device, no track loaded, premium required). Callers treat it as a no-op.
var ErrCannotPlay = errors.New("transport cannot play")

// Update is one observation of the playback position.
type Update struct {
	TrackID  string
	Position int // ms
	Duration int // ms
	Playing  bool
}

// Transport is the playback collaborator the loop engine drives.
// Position, Duration and IsPlaying return the most recently known values
// without blocking.
type Transport interface {
	Position() int
	Duration() int
	IsPlaying() bool

	Seek(ctx context.Context, ms int) error
	PlayFrom(ctx context.Context, ms int) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Load(ctx context.Context, t *track.Track) error

	// Sample refreshes and returns the current position.
	Sample(ctx context.Context) (Update, error)
}

// IsCannotPlay reports whether err means the transport could not act.
func IsCannotPlay(err error) bool {
	return errors.Is(err, ErrCannotPlay)
}
