package photocache

import (
	"errors"
	"log/slog"
)

// Option configures a Cache.
type Option func(*Cache) error

// Defaults applied by New.
const (
	// DefaultMemoryBudget caps the estimated bytes of memory-resident
	// full-resolution images.
	DefaultMemoryBudget int64 = 100 << 20 // 100 MB

	// DefaultMaxDimension is the longest edge stored images are
	// downscaled to.
	DefaultMaxDimension = 2048

	// DefaultThumbnailSize is the square bounding box thumbnails fit.
	DefaultThumbnailSize = 256

	// DefaultPreloadLimit caps the keys a single Preload call touches.
	DefaultPreloadLimit = 50

	// DefaultReadConcurrency bounds simultaneous preload disk reads.
	DefaultReadConcurrency = 4
)

// WithMemoryBudget sets the byte ceiling for memory-resident images.
func WithMemoryBudget(bytes int64) Option {
	return func(c *Cache) error {
		if bytes <= 0 {
			return errors.New("memory budget must be positive")
		}
		c.memoryBudget = bytes
		return nil
	}
}

// WithMaxDimension sets the longest edge stored images are downscaled to.
func WithMaxDimension(px int) Option {
	return func(c *Cache) error {
		if px <= 0 {
			return errors.New("max dimension must be positive")
		}
		c.maxDimension = px
		return nil
	}
}

// WithThumbnailSize sets the bounding box thumbnails are fit into.
func WithThumbnailSize(w, h int) Option {
	return func(c *Cache) error {
		if w <= 0 || h <= 0 {
			return errors.New("thumbnail size must be positive")
		}
		c.thumbW = w
		c.thumbH = h
		return nil
	}
}

// WithPreloadLimit caps the number of keys one Preload call will touch.
func WithPreloadLimit(n int) Option {
	return func(c *Cache) error {
		if n <= 0 {
			return errors.New("preload limit must be positive")
		}
		c.preloadLimit = n
		return nil
	}
}

// WithReadConcurrency sets the number of simultaneous preload disk reads.
// Values < 1 are clamped to 1.
func WithReadConcurrency(n int) Option {
	return func(c *Cache) error {
		if n < 1 {
			n = 1
		}
		c.readConcurrency = n
		return nil
	}
}

// WithJPEGQuality sets the encode quality (1-100) of the default disk
// store. Ignored when WithDiskStore supplies the disk tier.
func WithJPEGQuality(q int) Option {
	return func(c *Cache) error {
		c.jpegQuality = q
		return nil
	}
}

// WithDiskStore replaces the default disk-backed store.
func WithDiskStore(ds DiskStore) Option {
	return func(c *Cache) error {
		if ds == nil {
			return errors.New("disk store is nil")
		}
		c.diskStore = ds
		return nil
	}
}

// WithLogger sets the logger for swallowed disk failures.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		c.logger = logger
		return nil
	}
}
