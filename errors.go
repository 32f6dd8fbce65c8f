package bufpage

import (
	"errors"

	"github.com/holmberd/go-bufpage/internal/store"
)

var (
	// ErrInvalid is returned for an unknown entry id or an operation that
	// does not match the entry's state, e.g. unfetching an entry that was never fetched.
	ErrInvalid = errors.New("invalid entry")

	// ErrCacheFull is returned when the cache has no room for an entry
	// and its policy refuses to evict. The caller may retry later.
	ErrCacheFull = errors.New("cache is full")

	// ErrExpired is returned by Fetch for an entry that was evicted.
	// It is an expected outcome: the entry's bytes are gone.
	ErrExpired = errors.New("entry expired")

	ErrClosed = errors.New("cache is closed")

	ErrSwapCorrupted = store.ErrSwapCorrupted
	ErrShortBuffer   = store.ErrShortBuffer
	ErrNoPayload     = store.ErrNoPayload
	ErrSizeMismatch  = store.ErrSizeMismatch
)
