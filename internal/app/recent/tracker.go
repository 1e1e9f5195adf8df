// Package recent keeps the per-user list of recently played tracks.
package recent

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/loopbox/internal/domain/track"
)

// Limit is the number of recent tracks kept per user.
const Limit = 10

// ErrInvalidTrack is returned for a track without an ID.
var ErrInvalidTrack = errors.New("track id is required")

// Repository stores recent tracks per user, most recent first.
type Repository interface {
	ListRecentTracks(ctx context.Context, userID string, limit int) ([]track.Track, error)
	AddRecentTrack(ctx context.Context, userID string, t track.Track) error
}

// Merge puts t at the front of list, drops any older entry for the same
// track and caps the result at limit. list is not modified.
func Merge(list []track.Track, t track.Track, limit int) []track.Track {
	out := make([]track.Track, 0, min(len(list)+1, limit))
	out = append(out, t)
	for _, existing := range list {
		if len(out) >= limit {
			break
		}
		if existing.ID != t.ID {
			out = append(out, existing)
		}
	}
	return out
}

// Tracker is a user's recent list with optimistic local updates.
type Tracker struct {
	repo   Repository
	userID string

	mu     sync.RWMutex
	tracks []track.Track
}

// NewTracker creates a tracker. repo may be nil for an in-memory list.
func NewTracker(repo Repository, userID string) *Tracker {
	return &Tracker{repo: repo, userID: userID}
}

// Tracks returns a copy of the list.
func (t *Tracker) Tracks() []track.Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]track.Track(nil), t.tracks...)
}

// Load replaces the list with the stored one.
func (t *Tracker) Load(ctx context.Context) error {
	if t.repo == nil || t.userID == "" {
		return nil
	}
	tracks, err := t.repo.ListRecentTracks(ctx, t.userID, Limit)
	if err != nil {
		return errors.Wrapf(err, "list recent tracks for %s", t.userID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = tracks
	if len(t.tracks) > Limit {
		t.tracks = t.tracks[:Limit]
	}
	return nil
}

// Add moves tr to the front locally, then stores it. When storing fails the
// list is reloaded from the repository.
func (t *Tracker) Add(ctx context.Context, tr track.Track) error {
	if tr.ID == "" {
		return ErrInvalidTrack
	}

	t.mu.Lock()
	t.tracks = Merge(t.tracks, tr, Limit)
	t.mu.Unlock()

	if t.repo == nil || t.userID == "" {
		return nil
	}
	if err := t.repo.AddRecentTrack(ctx, t.userID, tr); err != nil {
		zlog.Warn().Msgf("recent: save %s failed: %v", tr.ID, err)
		if loadErr := t.Load(ctx); loadErr != nil {
			zlog.Warn().Msgf("recent: reload failed: %v", loadErr)
		}
		return errors.Wrapf(err, "add recent track %s", tr.ID)
	}
	return nil
}
