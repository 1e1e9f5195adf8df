package storage

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/loopbox/internal/domain/loop"
	"github.com/osa030/loopbox/internal/infra/metrics"
)

// DefaultCacheSize is the number of loop rows kept in memory.
const DefaultCacheSize = 512

// LoopRows is the row level loop storage.
type LoopRows interface {
	GetLoop(ctx context.Context, userID, trackID string) (*LoopData, error)
	UpsertLoop(ctx context.Context, userID, trackID string, rec loop.Record) (*LoopData, error)
	DeleteLoop(ctx context.Context, userID, trackID string) (bool, error)
}

// CachedLoops is a read-through cache in front of LoopRows.
// Concurrent loads of the same key share one backend call. Missing rows
// are cached too.
type CachedLoops struct {
	next    LoopRows
	metrics *metrics.Metrics

	cache *lru.Cache[string, *LoopData]
	group singleflight.Group

	mu       sync.Mutex
	versions map[string]uint64 // Bumped on every write so an older load cannot overwrite it
}

// NewCachedLoops wraps next. m may be nil.
func NewCachedLoops(next LoopRows, size int, m *metrics.Metrics) (*CachedLoops, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *LoopData](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create loop cache")
	}
	return &CachedLoops{
		next:     next,
		metrics:  m,
		cache:    cache,
		versions: make(map[string]uint64),
	}, nil
}

// GetLoop returns the cached row or loads it from the backend.
func (c *CachedLoops) GetLoop(ctx context.Context, userID, trackID string) (*LoopData, error) {
	key := cacheKey(userID, trackID)
	if data, ok := c.cache.Get(key); ok {
		c.metrics.ObserveCache(true)
		c.metrics.ObserveLoad(nil)
		return cloneData(data), nil
	}
	c.metrics.ObserveCache(false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		version := c.versions[key]
		c.mu.Unlock()

		data, err := c.next.GetLoop(ctx, userID, trackID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.versions[key] == version {
			c.cache.Add(key, cloneData(data))
		}
		c.mu.Unlock()
		return data, nil
	})
	c.metrics.ObserveLoad(err)
	if err != nil {
		return nil, err
	}
	return cloneData(v.(*LoopData)), nil
}

// UpsertLoop writes through to the backend and caches the stored row.
func (c *CachedLoops) UpsertLoop(ctx context.Context, userID, trackID string, rec loop.Record) (*LoopData, error) {
	key := c.invalidate(userID, trackID)

	data, err := c.next.UpsertLoop(ctx, userID, trackID, rec)
	c.metrics.ObserveSave(err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.versions[key]++
	c.cache.Add(key, cloneData(data))
	c.mu.Unlock()
	return cloneData(data), nil
}

// DeleteLoop deletes the row and drops it from the cache.
func (c *CachedLoops) DeleteLoop(ctx context.Context, userID, trackID string) (bool, error) {
	c.invalidate(userID, trackID)
	return c.next.DeleteLoop(ctx, userID, trackID)
}

// LoadLoop returns the stored record, or nil when nothing is saved.
func (c *CachedLoops) LoadLoop(ctx context.Context, userID, trackID string) (*loop.Record, error) {
	data, err := c.GetLoop(ctx, userID, trackID)
	if err != nil || data == nil {
		return nil, err
	}
	return &data.Record, nil
}

// SaveLoop stores rec for (userID, trackID).
func (c *CachedLoops) SaveLoop(ctx context.Context, userID, trackID string, rec loop.Record) error {
	_, err := c.UpsertLoop(ctx, userID, trackID, rec)
	return err
}

// Invalidate drops the cached row for (userID, trackID).
func (c *CachedLoops) Invalidate(userID, trackID string) {
	c.invalidate(userID, trackID)
}

// Len returns the number of cached rows.
func (c *CachedLoops) Len() int {
	return c.cache.Len()
}

func (c *CachedLoops) invalidate(userID, trackID string) string {
	key := cacheKey(userID, trackID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[key]++
	c.cache.Remove(key)
	return key
}

func cacheKey(userID, trackID string) string {
	return userID + "\x00" + trackID
}

func cloneData(data *LoopData) *LoopData {
	if data == nil {
		return nil
	}
	out := *data
	rec := &out.Record
	if rec.Segments != nil {
		rec.Segments = append([]loop.Segment(nil), rec.Segments...)
	}
	if rec.ActiveLoopID != nil {
		id := *rec.ActiveLoopID
		rec.ActiveLoopID = &id
	}
	if rec.LoopStart != nil {
		v := *rec.LoopStart
		rec.LoopStart = &v
	}
	if rec.LoopEnd != nil {
		v := *rec.LoopEnd
		rec.LoopEnd = &v
	}
	return &out
}
