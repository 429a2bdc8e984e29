// Package memstore implements the in-memory tier of the photo cache: a
// full-resolution table and a thumbnail table keyed by the same strings,
// plus a running byte count, all behind a single lock so the accounting
// can never drift from the maps.
package memstore

import (
	"image"
	"sync"
)

// An eviction pass drains usage to 3/4 of the budget rather than stopping
// at the line, so consecutive inserts do not each trigger a pass.
const (
	evictNumerator   = 3
	evictDenominator = 4
)

// SizeFunc estimates the resident byte footprint of an image.
type SizeFunc func(image.Image) int64

// ThumbFunc derives a thumbnail from a full-resolution image.
type ThumbFunc func(image.Image) image.Image

// Store holds decoded images under a byte budget.
//
// Only full-resolution entries count against the budget; thumbnails are
// derived data, always recomputable, and are not evicted in lockstep with
// their full-resolution source. The two tables may diverge over time.
type Store struct {
	mu        sync.RWMutex
	budget    int64
	sizeFn    SizeFunc
	thumbFn   ThumbFunc
	full      map[string]image.Image
	thumbs    map[string]image.Image
	usedBytes int64
}

// New creates a Store with the given byte budget. sizeFn prices entries for
// the budget; thumbFn derives thumbnails on demand.
func New(budget int64, sizeFn SizeFunc, thumbFn ThumbFunc) *Store {
	if budget <= 0 {
		budget = 1
	}
	return &Store{
		budget:  budget,
		sizeFn:  sizeFn,
		thumbFn: thumbFn,
		full:    make(map[string]image.Image),
		thumbs:  make(map[string]image.Image),
	}
}

// Insert adds or replaces the full-resolution entry for key, dropping any
// stale thumbnail, and evicts other entries as needed to respect the
// budget. Eviction order is map iteration order, not recency.
func (s *Store) Insert(key string, img image.Image) {
	size := s.sizeFn(img)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.full[key]; ok {
		s.usedBytes -= s.sizeFn(old)
	}
	delete(s.thumbs, key)
	s.full[key] = img
	s.usedBytes += size
	s.enforceBudget()
}

// enforceBudget evicts full-resolution entries until usage drops to the
// eviction target. Caller must hold the write lock.
func (s *Store) enforceBudget() {
	if s.usedBytes <= s.budget {
		return
	}
	target := s.budget * evictNumerator / evictDenominator
	for key, img := range s.full {
		if s.usedBytes <= target {
			break
		}
		s.usedBytes -= s.sizeFn(img)
		delete(s.full, key)
	}
}

// Lookup returns the full-resolution entry for key.
func (s *Store) Lookup(key string) (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.full[key]
	return img, ok
}

// LookupThumbnail returns the thumbnail for key, deriving and caching it
// from the full-resolution entry when absent. A key with neither a cached
// thumbnail nor a full-resolution entry is a miss.
func (s *Store) LookupThumbnail(key string) (image.Image, bool) {
	s.mu.RLock()
	if thumb, ok := s.thumbs[key]; ok {
		s.mu.RUnlock()
		return thumb, true
	}
	_, haveFull := s.full[key]
	s.mu.RUnlock()
	if !haveFull {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if thumb, ok := s.thumbs[key]; ok {
		return thumb, true
	}
	full, ok := s.full[key]
	if !ok {
		// Evicted between the read and write locks.
		return nil, false
	}
	thumb := s.thumbFn(full)
	s.thumbs[key] = thumb
	return thumb, true
}

// Contains reports whether key has a full-resolution entry.
func (s *Store) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.full[key]
	return ok
}

// Len returns the number of full-resolution entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.full)
}

// UsedBytes returns the current budget usage.
func (s *Store) UsedBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes
}

// Clear empties both tables and resets the byte count.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = make(map[string]image.Image)
	s.thumbs = make(map[string]image.Image)
	s.usedBytes = 0
}
