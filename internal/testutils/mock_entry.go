// Package testutils contains test doubles shared by the package tests.
package testutils

import (
	"errors"
	"sync/atomic"
)

var (
	ErrMockNoPayload   = errors.New("mock entry has no payload")
	ErrMockShortBuffer = errors.New("mock entry flatten buffer too small")
	ErrMockSize        = errors.New("mock entry unflatten size mismatch")
)

// MockEntry is a cache entry holding a single byte payload.
type MockEntry struct {
	size       int
	payload    []byte
	hasPayload bool

	flattenCalls   atomic.Int64
	unflattenCalls atomic.Int64
	discardCalls   atomic.Int64
}

// NewMockEntry creates an entry owning a copy of payload.
func NewMockEntry(payload []byte) *MockEntry {
	e := &MockEntry{size: len(payload), hasPayload: true}
	e.payload = append(make([]byte, 0, len(payload)), payload...)
	return e
}

// Pattern returns n bytes of a repeating sequence starting at seed.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

func (e *MockEntry) FlattenedSize() int {
	return e.size
}

func (e *MockEntry) Flatten(dst []byte) error {
	e.flattenCalls.Add(1)
	if !e.hasPayload {
		return ErrMockNoPayload
	}
	if len(dst) < e.size {
		return ErrMockShortBuffer
	}
	copy(dst, e.payload)
	e.payload = nil
	e.hasPayload = false
	return nil
}

func (e *MockEntry) Unflatten(src []byte) error {
	e.unflattenCalls.Add(1)
	if len(src) != e.size {
		return ErrMockSize
	}
	e.payload = append(make([]byte, 0, len(src)), src...)
	e.hasPayload = true
	return nil
}

func (e *MockEntry) Discard() {
	e.discardCalls.Add(1)
	e.payload = nil
	e.hasPayload = false
}

// Payload returns the live payload; it is nil when the payload was released.
func (e *MockEntry) Payload() []byte {
	return e.payload
}

func (e *MockEntry) HasPayload() bool {
	return e.hasPayload
}

func (e *MockEntry) FlattenCalls() int64 {
	return e.flattenCalls.Load()
}

func (e *MockEntry) UnflattenCalls() int64 {
	return e.unflattenCalls.Load()
}

func (e *MockEntry) DiscardCalls() int64 {
	return e.discardCalls.Load()
}
