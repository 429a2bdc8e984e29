// Package photocache provides a two-tier cache for decoded photos: a
// byte-budgeted in-memory store over a durable on-disk store of compressed
// files.
//
// Keys are caller-opaque strings; the cache has no knowledge of what they
// identify. Stored images are downscaled once to a maximum dimension,
// persisted to disk as fixed-quality JPEG files, and served from memory
// while resident. Memory misses read through to disk and promote the entry
// back into memory. Thumbnails are derived lazily in memory and never
// touch disk.
//
// # Quick Start
//
//	cache, err := photocache.New(filepath.Join(docs, "ImageCache"),
//	    photocache.WithMemoryBudget(50<<20),
//	)
//	if err != nil {
//	    return err
//	}
//	cache.Store(photoID, img)
//	if img, ok := cache.Retrieve(photoID); ok {
//	    // ...
//	}
//
// Register [Cache.OnMemoryPressure] with the host environment's low-memory
// signal and call [Cache.CleanDiskCache] periodically to age out disk
// entries.
//
// # Failure model
//
// The cache is best-effort by contract: disk failures are logged and
// degrade to misses, never to errors or panics. A miss means the caller
// re-fetches the image from its original source.
package photocache
