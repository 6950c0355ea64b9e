package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"scormrelay/internal/types"
)

// DefaultRefreshInterval is the staleness window used when none is configured.
const DefaultRefreshInterval = 60 * time.Second

const contentTypeJSON = "application/json"

// snapshot is the whole cache state. It is replaced with a single pointer
// swap and never mutated after publication, so readers see either the old
// or the new state in full.
type snapshot struct {
	mapping  Mapping
	loadedAt time.Time
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	Store           BlobStore
	Key             string
	RefreshInterval time.Duration
	Clock           types.Clock
	Logger          *slog.Logger
}

// Cache serves the mapping from memory and re-reads the store on first access
// after the refresh interval has elapsed. There is no background timer.
type Cache struct {
	store    BlobStore
	key      string
	interval time.Duration
	clock    types.Clock
	logger   *slog.Logger

	state atomic.Pointer[snapshot]
	// loads collapses concurrent non-forced refreshes into one store read.
	loads singleflight.Group
}

// NewCache returns a cache bound to cfg.Key. The initial state is an empty
// mapping with a zero load time, so the first access reads the store.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache{
		store:    cfg.Store,
		key:      cfg.Key,
		interval: cfg.RefreshInterval,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "mapping_cache", "key", cfg.Key),
	}
	c.state.Store(&snapshot{mapping: Mapping{}})
	return c
}

// Load returns the current mapping.
//
// Without force, a fresh cached mapping is returned as is. A stale one is
// re-read from the store; if that read fails the error is logged and the
// previous mapping is served, and the next access tries again.
//
// With force, the store is always read and failures are returned as
// *DecodeError or *StoreAccessError.
func (c *Cache) Load(ctx context.Context, force bool) (Mapping, error) {
	current := c.state.Load()
	if force {
		return c.refresh(ctx, current)
	}
	if !c.stale(current) {
		return current.mapping, nil
	}

	v, err, _ := c.loads.Do("load", func() (any, error) {
		// Another caller may have refreshed while this one waited.
		latest := c.state.Load()
		if !c.stale(latest) {
			return latest.mapping, nil
		}
		return c.refresh(ctx, latest)
	})
	if err != nil {
		c.logger.WarnContext(ctx, "mapping refresh failed, serving cached copy",
			"error", err,
			"cached_entries", len(c.state.Load().mapping),
		)
		return c.state.Load().mapping, nil
	}
	return v.(Mapping), nil
}

// Update writes m as the complete mapping and, once the write succeeds,
// makes it the cached state. A failed write leaves the cache untouched.
// Concurrent updates are last-writer-wins.
func (c *Cache) Update(ctx context.Context, m Mapping) error {
	data, err := json.MarshalIndent(m.Clone(), "", "    ")
	if err != nil {
		return &StoreAccessError{Op: "encode", Key: c.key, Err: err}
	}
	if err := c.store.Write(ctx, c.key, data, contentTypeJSON); err != nil {
		return &StoreAccessError{Op: "write", Key: c.key, Err: err}
	}

	c.state.Store(&snapshot{mapping: m.Clone(), loadedAt: c.clock.Now()})
	c.logger.InfoContext(ctx, "mapping replaced", "entries", len(m))
	return nil
}

// LoadedAt returns the time of the last successful load or update.
func (c *Cache) LoadedAt() time.Time {
	return c.state.Load().loadedAt
}

func (c *Cache) stale(s *snapshot) bool {
	return c.clock.Now().Sub(s.loadedAt) > c.interval
}

// refresh reads the store and publishes the result unless the state moved
// on since observed was taken. In that case the newer state is returned so
// that a slow read never overwrites a later update.
func (c *Cache) refresh(ctx context.Context, observed *snapshot) (Mapping, error) {
	m, err := c.read(ctx)
	if err != nil {
		return nil, err
	}

	next := &snapshot{mapping: m, loadedAt: c.clock.Now()}
	if c.state.CompareAndSwap(observed, next) {
		c.logger.DebugContext(ctx, "mapping loaded", "entries", len(m))
		return m, nil
	}
	return c.state.Load().mapping, nil
}

func (c *Cache) read(ctx context.Context) (Mapping, error) {
	data, err := c.store.Read(ctx, c.key)
	if errors.Is(err, ErrBlobNotFound) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, &StoreAccessError{Op: "read", Key: c.key, Err: err}
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Key: c.key, Err: err}
	}
	if m == nil {
		m = Mapping{}
	}
	return m, nil
}
