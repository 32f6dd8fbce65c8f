package bufpage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/holmberd/go-bufpage/internal/store"
)

// Stats represents cache stats.
type Stats struct {
	Puts      uint64
	Fetches   uint64
	Unfetches uint64
	Flushes   uint64
	Evictions uint64
	Expired   uint64 // Fetches of entries that had been evicted.
}

func (s *Stats) Reset() {
	*s = Stats{}
}

// Cache holds entries on behalf of buffers that are not in use.
//
// Every entry is tracked by a record with a unique id. A stored entry lives in
// the primary store, a fetched entry is on loan to the caller, and a discarded
// entry was evicted: its payload is gone and fetching it returns ErrExpired.
type Cache struct {
	mu        sync.Mutex
	logger    *slog.Logger
	policy    EvictionPolicy
	primary   store.Store
	fetched   *store.NullStore
	discarded *store.NullStore
	records   map[uint64]*store.Record
	nextID    uint64
	closed    bool
	stats     Stats

	pool *ChunkPool // Scratch pool owned by the cache, if any.
}

func newCache(primary store.Store, policy EvictionPolicy, logger *slog.Logger) *Cache {
	return &Cache{
		logger:    logger,
		policy:    policy,
		primary:   primary,
		fetched:   store.NewNullStore(store.StatusFetched),
		discarded: store.NewNullStore(store.StatusDiscarded),
		records:   make(map[uint64]*store.Record),
	}
}

// NewHeapCache creates a cache that keeps entries in memory, bounded by cfg.Capacity.
func NewHeapCache(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newCache(store.NewHeapStore(), NewCapacityPolicy(cfg.Capacity, cfg.Persistent), cfg.logger()), nil
}

// NewSwapCache creates a cache that serializes entries into a temporary swap
// file, bounded by cfg.Capacity bytes of swapped data.
func NewSwapCache(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger()
	pool := NewChunkPool(cfg.ScratchPool, logger)
	s, err := store.NewSwapStore(store.SwapConfig{
		Dir:     cfg.SwapDir,
		Pattern: cfg.SwapPattern,
		Extend:  cfg.SwapExtend,
		Pool:    pool,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("swap cache created",
		"path", s.Path(),
		"capacity", humanize.IBytes(uint64(cfg.Capacity)),
	)
	c := newCache(s, NewCapacityPolicy(cfg.Capacity, cfg.Persistent), logger)
	c.pool = pool
	return c, nil
}

// Put stores an entry and returns its id. The cache takes ownership of the entry.
// If there is no room for it, ErrCacheFull is returned and the entry stays with the caller.
func (c *Cache) Put(e Entry) (uint64, error) {
	if e == nil {
		return 0, fmt.Errorf("put nil entry: %w", ErrInvalid)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	if !c.policy.CheckRoomFor(c.host(), int64(e.FlattenedSize())) {
		return 0, ErrCacheFull
	}
	c.nextID++
	r := store.NewRecord(c.nextID, e)
	if err := c.policy.InsertRecord(c.host(), r); err != nil {
		return 0, fmt.Errorf("put entry %d: %w", r.ID(), err)
	}
	c.records[r.ID()] = r
	atomic.AddUint64(&c.stats.Puts, 1)
	return r.ID(), nil
}

// Fetch takes a stored entry out of the cache and hands it to the caller until
// it is returned with Unfetch. It returns ErrExpired if the entry was evicted
// and ErrInvalid if the id is unknown or the entry is already fetched.
func (c *Cache) Fetch(id uint64) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	r, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("fetch entry %d: %w", id, ErrInvalid)
	}
	switch r.Status() {
	case store.StatusStored:
	case store.StatusDiscarded:
		atomic.AddUint64(&c.stats.Expired, 1)
		return nil, fmt.Errorf("fetch entry %d: %w", id, ErrExpired)
	default:
		return nil, fmt.Errorf("fetch %s entry %d: %w", r.Status(), id, ErrInvalid)
	}

	if err := r.Store().Remove(r); err != nil {
		return nil, fmt.Errorf("fetch entry %d: %w", id, err)
	}
	e := r.TakeEntry()
	c.fetched.Add(r)
	atomic.AddUint64(&c.stats.Fetches, 1)
	return e, nil
}

// Unfetch returns a fetched entry to the cache. The cache takes ownership of e.
// If there is no room for it, ErrCacheFull is returned and the entry stays
// fetched and with the caller.
func (c *Cache) Unfetch(id uint64, e Entry) error {
	if e == nil {
		return fmt.Errorf("unfetch entry %d: nil entry: %w", id, ErrInvalid)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	r, ok := c.records[id]
	if !ok {
		return fmt.Errorf("unfetch entry %d: %w", id, ErrInvalid)
	}
	if r.Status() != store.StatusFetched {
		return fmt.Errorf("unfetch %s entry %d: %w", r.Status(), id, ErrInvalid)
	}
	if !c.policy.CheckRoomFor(c.host(), int64(e.FlattenedSize())) {
		return ErrCacheFull
	}

	c.fetched.Remove(r)
	r.SetEntry(e)
	if err := c.policy.InsertRecord(c.host(), r); err != nil {
		r.TakeEntry()
		c.fetched.Add(r)
		return fmt.Errorf("unfetch entry %d: %w", id, err)
	}
	atomic.AddUint64(&c.stats.Unfetches, 1)
	return nil
}

// Flush drops an entry in any state and forgets its id. Unknown ids are ignored.
func (c *Cache) Flush(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[id]
	if !ok {
		return
	}
	c.flush(r)
}

func (c *Cache) flush(r *store.Record) {
	delete(c.records, r.ID())
	if s := r.Store(); s != nil {
		s.Zap(r)
	} else {
		r.Free()
	}
	atomic.AddUint64(&c.stats.Flushes, 1)
}

// MarkAsDirty tells the cache that the bytes of a fetched entry changed,
// so copies kept by the stores must not be reused.
func (c *Cache) MarkAsDirty(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.records[id]; ok {
		r.Dirty()
	}
}

// Status returns the status of an entry and whether the id is known.
func (c *Cache) Status(id uint64) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.records[id]
	if !ok {
		return store.StatusUndefined, false
	}
	return r.Status(), true
}

// Size returns the number of bytes held by the primary store.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary.Size()
}

// Len returns the number of entries the cache tracks, in any state.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *Cache) Capacity() int64 {
	return c.policy.Capacity()
}

func (c *Cache) IsPersistent() bool {
	return c.policy.IsPersistent()
}

func (c *Cache) UpdateStats(s *Stats) {
	s.Puts += atomic.LoadUint64(&c.stats.Puts)
	s.Fetches += atomic.LoadUint64(&c.stats.Fetches)
	s.Unfetches += atomic.LoadUint64(&c.stats.Unfetches)
	s.Flushes += atomic.LoadUint64(&c.stats.Flushes)
	s.Evictions += atomic.LoadUint64(&c.stats.Evictions)
	s.Expired += atomic.LoadUint64(&c.stats.Expired)
}

// Close flushes every entry and releases the cache's stores.
// Operations on a closed cache return ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for _, r := range c.records {
		c.flush(r)
	}
	err := errors.Join(
		c.primary.Close(),
		c.fetched.Close(),
		c.discarded.Close(),
	)
	if c.pool != nil {
		c.pool.Release()
	}
	return err
}

func (c *Cache) host() Host {
	return cacheHost{c}
}

// discard evicts a stored record. Its payload is dropped without being read
// back and later fetches of its id return ErrExpired.
func (c *Cache) discard(r *store.Record) {
	if r.Status() != store.StatusStored {
		panic(fmt.Errorf("invariant violation: discard of %s record %d", r.Status(), r.ID()))
	}
	r.Store().Evict(r)
	c.discarded.Add(r)
	atomic.AddUint64(&c.stats.Evictions, 1)
	c.logger.Debug("entry evicted",
		"id", r.ID(),
		"size", humanize.IBytes(uint64(r.Size())),
	)
}

// cacheHost exposes the cache to its policy without taking the lock.
type cacheHost struct {
	c *Cache
}

func (h cacheHost) Size() int64 {
	return h.c.primary.Size()
}

func (h cacheHost) Primary() store.Store {
	return h.c.primary
}

func (h cacheHost) Discard(r *store.Record) {
	h.c.discard(r)
}
