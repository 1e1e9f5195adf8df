package storage

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/track"
)

// ListRecentTracks returns up to limit tracks for the user, most recent first.
func (d *DB) ListRecentTracks(ctx context.Context, userID string, limit int) ([]track.Track, error) {
	if limit <= 0 || limit > d.recentLimit {
		limit = d.recentLimit
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT track FROM recent_tracks WHERE spotify_user_id = ? ORDER BY played_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list recent tracks for %s", userID)
	}
	defer rows.Close()

	out := []track.Track{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan recent track")
		}
		var t track.Track
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, errors.Wrap(err, "failed to decode recent track")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate recent tracks")
}

// AddRecentTrack records t as the user's latest track and prunes the list.
func (d *DB) AddRecentTrack(ctx context.Context, userID string, t track.Track) error {
	if userID == "" || t.ID == "" {
		return errors.New("spotifyUserId and track id required")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "failed to encode track")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO recent_tracks (spotify_user_id, track_id, track, played_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (spotify_user_id, track_id) DO UPDATE SET
			track = excluded.track,
			played_at = excluded.played_at`,
		userID, t.ID, string(raw), d.now().UnixNano(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to add recent track %s", t.ID)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM recent_tracks
		 WHERE spotify_user_id = ? AND track_id NOT IN (
			SELECT track_id FROM recent_tracks
			WHERE spotify_user_id = ?
			ORDER BY played_at DESC
			LIMIT ?
		 )`,
		userID, userID, d.recentLimit,
	)
	if err != nil {
		return errors.Wrap(err, "failed to prune recent tracks")
	}

	return errors.Wrap(tx.Commit(), "failed to commit recent track")
}
