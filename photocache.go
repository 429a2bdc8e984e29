package photocache

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-mobile/photocache/disk"
	"github.com/meridian-mobile/photocache/internal/imaging"
	"github.com/meridian-mobile/photocache/internal/memstore"
)

// DiskStore is the durable tier behind a Cache. The default implementation
// lives in the disk package; tests substitute their own.
//
// Implementations must be safe for concurrent use.
type DiskStore interface {
	// Write persists img under key, replacing any existing entry.
	Write(key string, img image.Image) error

	// Read returns the entry for key. Any failure reads as a miss.
	Read(key string) (image.Image, bool)

	// DeleteOlderThan removes entries older than maxAge.
	DeleteOlderThan(maxAge time.Duration) error
}

// Cache is a two-tier photo cache: a byte-budgeted memory store over a
// durable disk store. Images are downscaled once on Store and served from
// memory when resident, read through from disk otherwise.
//
// Disk failures never surface as errors from the public methods; every
// failure mode degrades to a cache miss. All methods are safe for
// concurrent use.
type Cache struct {
	mem       *memstore.Store
	diskStore DiskStore
	logger    *slog.Logger

	maxDimension int
	thumbW       int
	thumbH       int
	preloadLimit int

	// loadGroup dedups concurrent Retrieve disk loads per key; readSlots
	// bounds simultaneous Preload disk reads.
	loadGroup singleflight.Group
	readSlots *semaphore.Weighted

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	// staged by options until New finishes wiring
	memoryBudget    int64
	readConcurrency int
	jpegQuality     int
}

// New creates a Cache whose disk tier lives under dir. The directory is
// created lazily on first write. dir may be empty when WithDiskStore
// supplies the disk tier.
func New(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		maxDimension:    DefaultMaxDimension,
		thumbW:          DefaultThumbnailSize,
		thumbH:          DefaultThumbnailSize,
		preloadLimit:    DefaultPreloadLimit,
		memoryBudget:    DefaultMemoryBudget,
		readConcurrency: DefaultReadConcurrency,
		jpegQuality:     disk.DefaultJPEGQuality,
		inflight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.diskStore == nil {
		ds, err := disk.New(dir, disk.WithJPEGQuality(c.jpegQuality), disk.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.diskStore = ds
	}
	c.mem = memstore.New(c.memoryBudget, imaging.Estimate, func(img image.Image) image.Image {
		return imaging.Thumbnail(img, c.thumbW, c.thumbH)
	})
	c.readSlots = semaphore.NewWeighted(int64(c.readConcurrency))
	return c, nil
}

// Store downscales img to the configured maximum dimension, inserts it into
// the memory tier, and writes it to disk in the background. The insert may
// evict unrelated keys to respect the memory budget. A failed disk write is
// logged and skipped; the in-memory copy stays authoritative.
func (c *Cache) Store(key string, img image.Image) {
	scaled := imaging.Downscale(img, c.maxDimension)
	c.mem.Insert(key, scaled)
	go func() {
		if err := c.diskStore.Write(key, scaled); err != nil {
			c.logger.Warn("disk write skipped", "key", key, "error", err)
		}
	}()
}

// Retrieve returns the cached image for key, reading through to disk on a
// memory miss. A disk hit is promoted back into the memory tier. This call
// can block on disk I/O; latency-sensitive callers should use
// RetrieveAsync.
func (c *Cache) Retrieve(key string) (image.Image, bool) {
	if img, ok := c.mem.Lookup(key); ok {
		return img, true
	}
	return c.loadFromDisk(key)
}

// RetrieveAsync is the non-blocking variant of Retrieve. On a memory hit fn
// runs synchronously before RetrieveAsync returns; otherwise the disk load
// happens on a background goroutine and fn is invoked from there. Either
// way fn is called exactly once.
func (c *Cache) RetrieveAsync(key string, fn func(image.Image, bool)) {
	if img, ok := c.mem.Lookup(key); ok {
		fn(img, true)
		return
	}
	go func() {
		fn(c.loadFromDisk(key))
	}()
}

// RetrieveThumbnail returns the thumbnail for key, deriving and caching it
// from the full-resolution entry when needed. Thumbnails are memory-only:
// a key absent from the memory tier misses even if it exists on disk.
func (c *Cache) RetrieveThumbnail(key string) (image.Image, bool) {
	return c.mem.LookupThumbnail(key)
}

// HasInMemory reports whether key is resident in the memory tier. No disk
// access, no promotion.
func (c *Cache) HasInMemory(key string) bool {
	return c.mem.Contains(key)
}

// Preload warms the memory tier from disk for up to the configured limit of
// keys. Keys already resident or already being loaded are skipped, and at
// most the configured number of disk reads run at once. Preload blocks
// until the batch settles; ctx only bounds the wait for read slots.
func (c *Cache) Preload(ctx context.Context, keys []string) {
	if len(keys) > c.preloadLimit {
		keys = keys[:c.preloadLimit]
	}
	var wg sync.WaitGroup
	for _, key := range keys {
		if c.mem.Contains(key) || !c.tryBegin(key) {
			continue
		}
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.end(key)
			if err := c.readSlots.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.readSlots.Release(1)
			if img, ok := c.diskStore.Read(key); ok {
				c.mem.Insert(key, img)
			}
		}()
	}
	wg.Wait()
}

// Clear empties the memory tier and forgets in-flight preload markers. Disk
// entries are untouched; an outstanding preload may still repopulate the
// emptied store when it completes.
func (c *Cache) Clear() {
	c.mem.Clear()
	c.inflightMu.Lock()
	c.inflight = make(map[string]struct{})
	c.inflightMu.Unlock()
}

// CleanDiskCache removes disk entries older than maxAge. Sweep failures are
// logged and swallowed.
func (c *Cache) CleanDiskCache(maxAge time.Duration) {
	if err := c.diskStore.DeleteOlderThan(maxAge); err != nil {
		c.logger.Warn("disk cleanup failed", "error", err)
	}
}

// OnMemoryPressure is the handler to register with the host environment's
// low-memory signal. It drops every memory-resident image immediately,
// bypassing the budgeted eviction path. Disk entries survive.
func (c *Cache) OnMemoryPressure() {
	c.mem.Clear()
}

// loadFromDisk reads key from the disk tier, promoting a hit into the
// memory tier. Concurrent loads for the same key share a single read.
func (c *Cache) loadFromDisk(key string) (image.Image, bool) {
	v, _, _ := c.loadGroup.Do(key, func() (any, error) {
		// Double-check memory: another goroutine may have promoted this
		// key between our lookup and acquiring the flight lock.
		if img, ok := c.mem.Lookup(key); ok {
			return img, nil
		}
		img, ok := c.diskStore.Read(key)
		if !ok {
			return nil, nil
		}
		c.mem.Insert(key, img)
		return img, nil
	})
	img, ok := v.(image.Image)
	if !ok || img == nil {
		return nil, false
	}
	return img, true
}

// tryBegin marks key as in flight, reporting false when a load for the same
// key is already running.
func (c *Cache) tryBegin(key string) bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if _, ok := c.inflight[key]; ok {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

// end clears the in-flight marker for key. Must be called exactly once per
// successful tryBegin, success or failure.
func (c *Cache) end(key string) {
	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()
}
