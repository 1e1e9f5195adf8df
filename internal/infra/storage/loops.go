package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/loopbox/internal/domain/loop"
)

// LoopData is a stored loop row.
type LoopData struct {
	SpotifyUserID string `json:"spotifyUserId"`
	TrackID       string `json:"trackId"`
	loop.Record
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const loopColumns = `spotify_user_id, track_id, segments, active_loop_id, loop_enabled, loop_start, loop_end, created_at, updated_at`

// GetLoop returns the stored row, or nil when nothing is saved.
func (d *DB) GetLoop(ctx context.Context, userID, trackID string) (*LoopData, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+loopColumns+` FROM loop_data WHERE spotify_user_id = ? AND track_id = ?`,
		userID, trackID,
	)
	data, err := scanLoop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get loop %s/%s", userID, trackID)
	}
	return data, nil
}

// UpsertLoop creates or replaces the row for (userID, trackID) and returns it.
func (d *DB) UpsertLoop(ctx context.Context, userID, trackID string, rec loop.Record) (*LoopData, error) {
	var segments sql.NullString
	if rec.Segments != nil {
		raw, err := json.Marshal(rec.Segments)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode segments")
		}
		segments = sql.NullString{String: string(raw), Valid: true}
	}

	now := d.now().Format(timeLayout)
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO loop_data (`+loopColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (spotify_user_id, track_id) DO UPDATE SET
			segments = excluded.segments,
			active_loop_id = excluded.active_loop_id,
			loop_enabled = excluded.loop_enabled,
			loop_start = excluded.loop_start,
			loop_end = excluded.loop_end,
			updated_at = excluded.updated_at`,
		userID, trackID, segments, nullString(rec.ActiveLoopID), rec.LoopEnabled,
		nullInt(rec.LoopStart), nullInt(rec.LoopEnd), now, now,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save loop %s/%s", userID, trackID)
	}
	return d.GetLoop(ctx, userID, trackID)
}

// ListLoops returns the user's saved loops, most recently updated first.
func (d *DB) ListLoops(ctx context.Context, userID string) ([]LoopData, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+loopColumns+` FROM loop_data WHERE spotify_user_id = ? ORDER BY updated_at DESC, track_id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list loops for %s", userID)
	}
	defer rows.Close()

	var out []LoopData
	for rows.Next() {
		data, err := scanLoop(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan loop row")
		}
		out = append(out, *data)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate loop rows")
}

// DeleteLoop removes the row for (userID, trackID). It reports whether a
// row existed.
func (d *DB) DeleteLoop(ctx context.Context, userID, trackID string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM loop_data WHERE spotify_user_id = ? AND track_id = ?`,
		userID, trackID,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete loop %s/%s", userID, trackID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

// LoadLoop returns the stored record, or nil when nothing is saved.
func (d *DB) LoadLoop(ctx context.Context, userID, trackID string) (*loop.Record, error) {
	data, err := d.GetLoop(ctx, userID, trackID)
	if err != nil || data == nil {
		return nil, err
	}
	return &data.Record, nil
}

// SaveLoop stores rec for (userID, trackID).
func (d *DB) SaveLoop(ctx context.Context, userID, trackID string, rec loop.Record) error {
	_, err := d.UpsertLoop(ctx, userID, trackID, rec)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoop(s scanner) (*LoopData, error) {
	var (
		data               LoopData
		segments, activeID sql.NullString
		start, end         sql.NullInt64
		created, updated   string
	)
	err := s.Scan(&data.SpotifyUserID, &data.TrackID, &segments, &activeID,
		&data.LoopEnabled, &start, &end, &created, &updated)
	if err != nil {
		return nil, err
	}

	if segments.Valid {
		if err := json.Unmarshal([]byte(segments.String), &data.Segments); err != nil {
			return nil, errors.Wrap(err, "failed to decode segments")
		}
	}
	if activeID.Valid {
		id := activeID.String
		data.ActiveLoopID = &id
	}
	if start.Valid {
		v := int(start.Int64)
		data.LoopStart = &v
	}
	if end.Valid {
		v := int(end.Int64)
		data.LoopEnd = &v
	}
	data.CreatedAt = parseTime(created)
	data.UpdatedAt = parseTime(updated)
	return &data, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
