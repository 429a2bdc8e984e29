// Package disk provides the durable tier of the photo cache: one JPEG file
// per key under a single directory, with the file modification time as the
// only persisted metadata.
package disk

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DefaultJPEGQuality is the fixed encode quality for cached files.
const DefaultJPEGQuality = 80

const (
	defaultDirPerm = 0o700
	fileExt        = ".jpg"
	tmpPattern     = "photocache-*"
)

// Store persists decoded images as compressed files. Writes are atomic per
// file (temp write then rename), so concurrent writers to different keys
// never conflict and readers never observe partial files.
type Store struct {
	dir     string
	quality int
	dirPerm os.FileMode
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithJPEGQuality sets the encode quality (1-100). Defaults to 80.
func WithJPEGQuality(q int) Option {
	return func(s *Store) {
		s.quality = q
	}
}

// WithDirPerm sets the permissions used when creating the store directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithLogger sets the logger for swallowed per-file failures.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a disk store rooted at dir. The directory itself is created
// lazily on first write.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("disk store dir is empty")
	}
	s := &Store{
		dir:     dir,
		quality: DefaultJPEGQuality,
		dirPerm: defaultDirPerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.quality < 1 || s.quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1-100", s.quality)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// Write encodes img at the fixed quality and atomically replaces the entry
// for key.
func (s *Store) Write(key string, img image.Image) error {
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return fmt.Errorf("disk store: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("disk store: %w", err)
	}
	tmpPath := tmp.Name()
	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: s.quality}); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("disk store: encode %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("disk store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("disk store: %w", err)
	}
	return nil
}

// Read decodes the entry for key. Every failure, including a corrupt or
// partial file, reads as a miss.
func (s *Store) Read(key string) (image.Image, bool) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		s.logger.Debug("corrupt cache file read as miss", "key", key, "error", err)
		return nil, false
	}
	return img, true
}

// DeleteOlderThan removes entries whose modification time is older than
// maxAge, including orphaned temp files. Per-file failures are logged and
// skipped; only a failure to enumerate the directory is returned.
func (s *Store) DeleteOlderThan(maxAge time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("disk store: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("cleanup stat failed, skipping", "name", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cleanup remove failed, skipping", "name", entry.Name(), "error", err)
		}
	}
	return nil
}

// path maps a key to its file. Keys are caller-opaque and not validated; a
// key containing a path separator degrades to a write failure, which the
// cache contract already treats as a skipped write.
func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}
