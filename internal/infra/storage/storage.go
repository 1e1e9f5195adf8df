// Package storage persists loop records and recent tracks in SQLite.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DefaultRecentLimit is the number of recent tracks kept per user.
const DefaultRecentLimit = 10

const timeLayout = time.RFC3339Nano

// Config holds storage configuration.
type Config struct {
	Path        string          // Database file, or MemoryPath
	RecentLimit int             // Recent tracks kept per user (defaults to DefaultRecentLimit)
	Clock       clockwork.Clock // Timestamp source (defaults to the real clock)
}

// DB is the SQLite backed store.
type DB struct {
	db          *sql.DB
	clock       clockwork.Clock
	recentLimit int
}

// Open opens the database, enables WAL mode and runs migrations.
func Open(ctx context.Context, config Config) (*DB, error) {
	if config.Path == "" {
		return nil, errors.New("storage path is required")
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = DefaultRecentLimit
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	if config.Path != MemoryPath {
		dir := filepath.Dir(config.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if config.Path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set WAL mode")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	d := &DB{db: db, clock: config.Clock, recentLimit: config.RecentLimit}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	zlog.Info().Msgf("Database initialized at %s", config.Path)
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS loop_data (
			spotify_user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			segments TEXT,
			active_loop_id TEXT,
			loop_enabled INTEGER NOT NULL DEFAULT 0,
			loop_start INTEGER,
			loop_end INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (spotify_user_id, track_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loop_data_updated ON loop_data(spotify_user_id, updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS recent_tracks (
			spotify_user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			track TEXT NOT NULL,
			played_at INTEGER NOT NULL,
			PRIMARY KEY (spotify_user_id, track_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recent_tracks_played ON recent_tracks(spotify_user_id, played_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.ExecContext(ctx, m); err != nil {
			return errors.Wrapf(err, "migration failed\nSQL: %s", m)
		}
	}
	return nil
}

func (d *DB) now() time.Time {
	return d.clock.Now().UTC()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		zlog.Warn().Msgf("storage: bad timestamp %q: %v", s, err)
	}
	return t
}
