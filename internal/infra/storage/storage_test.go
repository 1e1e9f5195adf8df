package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/domain/track"
	"github.com/osa030/loopbox/internal/infra/metrics"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func openTestDB(t *testing.T) (*DB, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	db, err := Open(context.Background(), Config{
		Path:  filepath.Join(t.TempDir(), "data", "loopbox.db"),
		Clock: clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, clock
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopbox.db")
	ctx := context.Background()

	first, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.SaveLoop(ctx, "u", "t", loop.Record{LoopEnabled: true}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	rec, err := second.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.LoopEnabled)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: MemoryPath})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(ctx))
	require.NoError(t, db.SaveLoop(ctx, "u", "t", loop.Record{}))
	rec, err := db.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestDB_LoopRoundTrip(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()

	rec, err := db.LoadLoop(ctx, "user-1", "track-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "nothing saved yet")

	segs := []loop.Segment{
		loop.New("a", 1, 1000, 4000),
		loop.New("b", 2, 6000, 9000),
	}
	want := loop.NewRecord(segs, "b", true)
	require.NoError(t, db.SaveLoop(ctx, "user-1", "track-1", want))

	got, err := db.LoadLoop(ctx, "user-1", "track-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	other, err := db.LoadLoop(ctx, "user-2", "track-1")
	require.NoError(t, err)
	assert.Nil(t, other, "rows are per user")
}

func TestDB_UpsertKeepsCreatedAt(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	first, err := db.UpsertLoop(ctx, "user-1", "track-1", loop.Record{LoopStart: intPtr(1000), LoopEnd: intPtr(4000)})
	require.NoError(t, err)
	created := first.CreatedAt

	clock.Advance(time.Minute)
	second, err := db.UpsertLoop(ctx, "user-1", "track-1", loop.Record{
		Segments:     []loop.Segment{loop.New("a", 1, 2000, 3000)},
		ActiveLoopID: strPtr("a"),
		LoopEnabled:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, created, second.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), second.UpdatedAt)
	assert.Nil(t, second.LoopStart, "legacy fields are replaced with the new record")
	require.Len(t, second.Segments, 1)
	assert.Equal(t, "user-1", second.SpotifyUserID)
	assert.Equal(t, "track-1", second.TrackID)
}

func TestDB_LegacyRowUpgrades(t *testing.T) {
	db, _ := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveLoop(ctx, "user-1", "track-1", loop.Record{
		LoopStart:   intPtr(1000),
		LoopEnd:     intPtr(4000),
		LoopEnabled: true,
	}))

	rec, err := db.LoadLoop(ctx, "user-1", "track-1")
	require.NoError(t, err)
	assert.Nil(t, rec.Segments)

	h, ok := rec.Upgrade(func() string { return "synth" })
	require.True(t, ok)
	require.Len(t, h.Segments, 1)
	assert.Equal(t, 1000, h.Segments[0].Start)
	assert.Equal(t, 4000, h.Segments[0].End)
	assert.True(t, h.Enabled)
}

func TestDB_ListAndDeleteLoops(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveLoop(ctx, "user-1", "old", loop.Record{}))
	clock.Advance(time.Second)
	require.NoError(t, db.SaveLoop(ctx, "user-1", "new", loop.Record{}))
	require.NoError(t, db.SaveLoop(ctx, "user-2", "other", loop.Record{}))

	list, err := db.ListLoops(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].TrackID)
	assert.Equal(t, "old", list[1].TrackID)

	deleted, err := db.DeleteLoop(ctx, "user-1", "old")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteLoop(ctx, "user-1", "old")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDB_RecentTracks(t *testing.T) {
	db, clock := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		clock.Advance(time.Second)
		require.NoError(t, db.AddRecentTrack(ctx, "user-1", track.Track{
			ID:       fmt.Sprintf("t%d", i),
			Name:     fmt.Sprintf("Track %d", i),
			Duration: 3 * time.Minute,
		}))
	}
	clock.Advance(time.Second)
	require.NoError(t, db.AddRecentTrack(ctx, "user-1", track.Track{ID: "t5", Name: "Track 5 (remaster)"}))

	list, err := db.ListRecentTracks(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, DefaultRecentLimit)
	assert.Equal(t, "t5", list[0].ID)
	assert.Equal(t, "Track 5 (remaster)", list[0].Name)
	assert.Equal(t, "t11", list[1].ID)
	assert.Equal(t, "t3", list[DefaultRecentLimit-1].ID)
	assert.Equal(t, 3*time.Minute, list[1].Duration)

	limited, err := db.ListRecentTracks(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	empty, err := db.ListRecentTracks(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestDB_AddRecentTrackValidates(t *testing.T) {
	db, _ := openTestDB(t)
	assert.Error(t, db.AddRecentTrack(context.Background(), "", track.Track{ID: "a"}))
	assert.Error(t, db.AddRecentTrack(context.Background(), "u", track.Track{}))
}

type countingRepo struct {
	mu      sync.Mutex
	rows    map[string]LoopData
	loads   atomic.Int32
	gate    chan struct{}
	saveErr error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{rows: map[string]LoopData{}}
}

func (r *countingRepo) GetLoop(_ context.Context, userID, trackID string) (*LoopData, error) {
	r.mu.Lock()
	data, ok := r.rows[userID+"/"+trackID]
	r.mu.Unlock()

	r.loads.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (r *countingRepo) UpsertLoop(_ context.Context, userID, trackID string, rec loop.Record) (*LoopData, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data := LoopData{SpotifyUserID: userID, TrackID: trackID, Record: rec}
	r.rows[userID+"/"+trackID] = data
	return &data, nil
}

func (r *countingRepo) DeleteLoop(_ context.Context, userID, trackID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[userID+"/"+trackID]
	delete(r.rows, userID+"/"+trackID)
	return ok, nil
}

func TestCachedLoops_ReadThrough(t *testing.T) {
	repo := newCountingRepo()
	repo.rows["u/t"] = LoopData{Record: loop.Record{Segments: []loop.Segment{loop.New("a", 1, 0, 1000)}}}
	m := metrics.New()
	c, err := NewCachedLoops(repo, 8, m)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	first.Segments[0].Start = 500

	second, err := c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Segments[0].Start, "callers get copies")
	assert.Equal(t, int32(1), repo.loads.Load())

	missing, err := c.LoadLoop(ctx, "u", "none")
	require.NoError(t, err)
	assert.Nil(t, missing)
	_, err = c.LoadLoop(ctx, "u", "none")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load(), "misses are cached")
	assert.Equal(t, 2, c.Len())
}

func TestCachedLoops_SaveWritesThrough(t *testing.T) {
	repo := newCountingRepo()
	c, err := NewCachedLoops(repo, 8, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)

	require.NoError(t, c.SaveLoop(ctx, "u", "t", loop.Record{LoopEnabled: true}))
	rec, err := c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.LoopEnabled)
	assert.Equal(t, int32(1), repo.loads.Load())

	repo.saveErr = errors.New("disk full")
	require.Error(t, c.SaveLoop(ctx, "u", "t", loop.Record{}))
	assert.Equal(t, 0, c.Len(), "failed save drops the entry")

	c.Invalidate("u", "t")
	_, err = c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())

	deleted, err := c.DeleteLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.True(t, deleted)
	rec, err = c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCachedLoops_ConcurrentLoadsShareOneCall(t *testing.T) {
	repo := newCountingRepo()
	repo.gate = make(chan struct{})
	c, err := NewCachedLoops(repo, 8, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.LoadLoop(context.Background(), "u", "t")
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()

	assert.Equal(t, int32(1), repo.loads.Load())
}

func TestCachedLoops_SaveDuringLoadWins(t *testing.T) {
	repo := newCountingRepo()
	repo.gate = make(chan struct{})
	c, err := NewCachedLoops(repo, 8, nil)
	require.NoError(t, err)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.LoadLoop(ctx, "u", "t")
	}()
	assert.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.SaveLoop(ctx, "u", "t", loop.Record{LoopEnabled: true}))
	close(repo.gate)
	<-done

	rec, err := c.LoadLoop(ctx, "u", "t")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.LoopEnabled, "the older load must not replace the saved record")
}

func TestCachedLoops_OverDB(t *testing.T) {
	db, _ := openTestDB(t)
	c, err := NewCachedLoops(db, 0, nil)
	require.NoError(t, err)
	ctx := context.Background()

	data, err := c.UpsertLoop(ctx, "u", "t", loop.Record{LoopStart: intPtr(1), LoopEnd: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, "u", data.SpotifyUserID)

	got, err := c.GetLoop(ctx, "u", "t")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
