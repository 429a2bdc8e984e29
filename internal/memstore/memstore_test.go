package memstore

import (
	"fmt"
	"image"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// widthSize prices an image at one byte per pixel of width, making test
// sizes exact and independent of pixel format.
func widthSize(img image.Image) int64 {
	return int64(img.Bounds().Dx())
}

func identityThumb(img image.Image) image.Image {
	return img
}

func testImage(w int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, 1))
}

// checkAccounting verifies that the byte count equals the summed estimates
// of the resident full-resolution entries.
func checkAccounting(t *testing.T, s *Store) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var want int64
	for _, img := range s.full {
		want += s.sizeFn(img)
	}
	require.Equal(t, want, s.usedBytes, "byte count must match summed entry estimates")
}

func TestInsertAndLookup(t *testing.T) {
	t.Parallel()

	s := New(1000, widthSize, identityThumb)
	img := testImage(10)
	s.Insert("a", img)

	got, ok := s.Lookup("a")
	require.True(t, ok)
	assert.True(t, got == img)
	assert.Equal(t, int64(10), s.UsedBytes())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	checkAccounting(t, s)
}

func TestInsertReplaceAdjustsAccounting(t *testing.T) {
	t.Parallel()

	s := New(1000, widthSize, identityThumb)
	s.Insert("a", testImage(10))
	s.Insert("a", testImage(4))

	assert.Equal(t, int64(4), s.UsedBytes())
	assert.Equal(t, 1, s.Len())
	checkAccounting(t, s)
}

func TestInsertReplaceDropsStaleThumbnail(t *testing.T) {
	t.Parallel()

	var derivations atomic.Int64
	s := New(1000, widthSize, func(img image.Image) image.Image {
		derivations.Add(1)
		return img
	})

	s.Insert("a", testImage(10))
	_, ok := s.LookupThumbnail("a")
	require.True(t, ok)
	require.Equal(t, int64(1), derivations.Load())

	// Replacing the full image invalidates the cached thumbnail.
	s.Insert("a", testImage(20))
	_, ok = s.LookupThumbnail("a")
	require.True(t, ok)
	assert.Equal(t, int64(2), derivations.Load())
}

func TestEnforceBudgetEvictsToTarget(t *testing.T) {
	t.Parallel()

	const budget = 100
	s := New(budget, widthSize, identityThumb)
	for i := 0; i < 10; i++ {
		s.Insert(fmt.Sprintf("key-%d", i), testImage(20))
		checkAccounting(t, s)
	}

	assert.LessOrEqual(t, s.UsedBytes(), int64(budget*evictNumerator/evictDenominator))
	assert.Less(t, s.Len(), 10)
}

func TestEnforceBudgetNoopUnderBudget(t *testing.T) {
	t.Parallel()

	s := New(100, widthSize, identityThumb)
	s.Insert("a", testImage(40))
	s.Insert("b", testImage(40))

	assert.Equal(t, int64(80), s.UsedBytes())
	assert.Equal(t, 2, s.Len())
}

func TestLookupThumbnailLazyDerivation(t *testing.T) {
	t.Parallel()

	var derivations atomic.Int64
	s := New(1000, widthSize, func(img image.Image) image.Image {
		derivations.Add(1)
		return img
	})

	s.Insert("a", testImage(10))

	_, ok := s.LookupThumbnail("a")
	require.True(t, ok)
	_, ok = s.LookupThumbnail("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), derivations.Load(), "thumbnail must be derived once and cached")

	_, ok = s.LookupThumbnail("missing")
	assert.False(t, ok)
}

func TestThumbnailSurvivesFullEviction(t *testing.T) {
	t.Parallel()

	const budget = 100
	s := New(budget, widthSize, identityThumb)

	// Derive thumbnails for everything, then blow the budget so the full
	// table sheds entries. The thumbnail table is not evicted in lockstep.
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		s.Insert(key, testImage(20))
		_, ok := s.LookupThumbnail(key)
		require.True(t, ok)
	}
	for i := 5; i < 10; i++ {
		s.Insert(fmt.Sprintf("key-%d", i), testImage(20))
	}

	require.Less(t, s.Len(), 10)
	var surviving int
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if !s.Contains(key) {
			if _, ok := s.LookupThumbnail(key); ok {
				surviving++
			}
		}
	}
	assert.Positive(t, surviving, "evicting a full entry must not drop its cached thumbnail")
	checkAccounting(t, s)
}

func TestClear(t *testing.T) {
	t.Parallel()

	s := New(1000, widthSize, identityThumb)
	s.Insert("a", testImage(10))
	s.Insert("b", testImage(20))
	_, ok := s.LookupThumbnail("a")
	require.True(t, ok)

	s.Clear()

	assert.Equal(t, int64(0), s.UsedBytes())
	assert.Equal(t, 0, s.Len())
	_, ok = s.Lookup("a")
	assert.False(t, ok)
	_, ok = s.LookupThumbnail("a")
	assert.False(t, ok)
}

func TestConcurrentInsertLookup(t *testing.T) {
	t.Parallel()

	s := New(1<<20, widthSize, identityThumb)
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		w := w
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d-%d", w, i)
				s.Insert(key, testImage(10))
				s.Lookup(key)
				s.LookupThumbnail(key)
			}
		}()
	}
	for n := 0; n < 4; n++ {
		<-done
	}
	checkAccounting(t, s)
}
