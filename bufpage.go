// Package bufpage implements pageable buffers backed by an object cache.
//
// A Buffer owns banks of raw element bytes. While it is locked its banks are
// resident in memory; when the last lock is released the banks are handed to
// the Buffer's Cache, which keeps them on the heap or serializes them to a
// swap file, and may evict them when it runs out of capacity. Locking the
// Buffer again brings the banks back.
//
// Caches serialize their operations with a mutex. Buffers are not safe for
// concurrent use.
package bufpage

import "github.com/holmberd/go-bufpage/internal/store"

const (
	KiB = 1024
	MiB = KiB * KiB
)

// Entry is a payload a Cache can hold, flatten to bytes and restore.
type Entry = store.Entry

// Status is the state of a cache entry.
type Status = store.Status

const (
	StatusUndefined = store.StatusUndefined
	StatusStored    = store.StatusStored
	StatusFetched   = store.StatusFetched
	StatusDiscarded = store.StatusDiscarded
)
