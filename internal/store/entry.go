// Package store implements the entry records and the stores a cache moves them between.
package store

import "errors"

var (
	ErrShortBuffer   = errors.New("flatten buffer is too small")
	ErrNoPayload     = errors.New("entry has no payload")
	ErrSizeMismatch  = errors.New("flattened size mismatch")
	ErrSwapCorrupted = errors.New("swap region checksum mismatch")
	ErrClosed        = errors.New("store is closed")
)

// Entry is a payload that can be moved in and out of memory.
//
// After a successful Flatten the entry no longer holds its payload; it has
// to be repopulated with Unflatten before it can be flattened again.
type Entry interface {
	FlattenedSize() int         // Size of the serialized payload in bytes.
	Flatten(dst []byte) error   // Serializes into dst and releases the payload.
	Unflatten(src []byte) error // Replaces the payload with a copy of src.
	Discard()                   // Releases the payload without serializing it.
}

// ChunkPooler hands out scratch byte slices for serializing entries.
type ChunkPooler interface {
	Get(size int) []byte // Get returns a slice of len size.
	Put(c []byte)        // Put returns a slice obtained from Get.
}
