// Package gap implements a first-fit allocator of byte ranges inside a growable file.
// It only tracks offsets; reading and writing the file is left to the caller.
package gap

import (
	"fmt"
	"sort"
)

const (
	KiB = 1024
	MiB = KiB * KiB

	DefaultExtend = 4 * MiB // Default amount the file grows by when no gap fits.
)

// Gap is a free range of bytes, both bounds inclusive.
type Gap struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the gap.
func (g Gap) Len() int64 {
	return g.End - g.Start + 1
}

// Allocator manages the free ranges of a file that only ever grows.
//
// Gaps are kept in ascending order, never overlap and are never adjacent:
// touching ranges are merged by the call that makes them touch.
// Not safe for concurrent use.
type Allocator struct {
	gaps   []Gap
	length int64 // Current file length.
	extend int64 // Minimum growth step.
}

// New creates an allocator for an empty file.
// An extend <= 0 selects DefaultExtend.
func New(extend int64) *Allocator {
	if extend <= 0 {
		extend = DefaultExtend
	}
	return &Allocator{extend: extend}
}

// Len returns the file length the allocator has grown to.
func (a *Allocator) Len() int64 {
	return a.length
}

// Gaps returns a copy of the free list.
func (a *Allocator) Gaps() []Gap {
	out := make([]Gap, len(a.gaps))
	copy(out, a.gaps)
	return out
}

// FreeBytes returns the total size of all gaps.
func (a *Allocator) FreeBytes() int64 {
	var n int64
	for _, g := range a.gaps {
		n += g.Len()
	}
	return n
}

// Allocate returns the offset of a free region of n bytes.
//
// The first gap large enough is used. If none fits, the file is grown by
// max(n, extend) bytes, the region is placed at the old end of the file and
// any unused remainder becomes a new gap.
func (a *Allocator) Allocate(n int64) int64 {
	if n <= 0 {
		panic(fmt.Errorf("invariant violation: allocation of %d bytes", n))
	}
	for i := range a.gaps {
		g := &a.gaps[i]
		if g.Len() < n {
			continue
		}
		offset := g.Start
		if g.Len() == n {
			a.gaps = append(a.gaps[:i], a.gaps[i+1:]...)
		} else {
			g.Start += n
		}
		return offset
	}

	grow := max(n, a.extend)
	offset := a.length
	a.length += grow
	if grow > n {
		a.Free(offset+n, grow-n)
	}
	return offset
}

// Free returns n bytes at offset to the free list, merging with its neighbours.
//
// A range that overlaps an existing gap or lies outside the file means the
// bookkeeping is broken and Free panics.
func (a *Allocator) Free(offset, n int64) {
	if n == 0 {
		return
	}
	g := Gap{Start: offset, End: offset + n - 1}
	if n < 0 || offset < 0 || g.End >= a.length {
		panic(fmt.Errorf("gap list corruption: range [%d, %d] outside file of %d bytes", g.Start, g.End, a.length))
	}

	// Index of the first gap starting after the new one.
	i := sort.Search(len(a.gaps), func(i int) bool { return a.gaps[i].Start > g.End })

	mergePrev := false
	if i > 0 {
		prev := a.gaps[i-1]
		if prev.End >= g.Start {
			panic(fmt.Errorf("gap list corruption: [%d, %d] overlaps [%d, %d]", g.Start, g.End, prev.Start, prev.End))
		}
		mergePrev = prev.End+1 == g.Start
	}
	mergeNext := false
	if i < len(a.gaps) {
		next := a.gaps[i]
		if next.Start <= g.End {
			panic(fmt.Errorf("gap list corruption: [%d, %d] overlaps [%d, %d]", g.Start, g.End, next.Start, next.End))
		}
		mergeNext = g.End+1 == next.Start
	}

	switch {
	case mergePrev && mergeNext:
		a.gaps[i-1].End = a.gaps[i].End
		a.gaps = append(a.gaps[:i], a.gaps[i+1:]...)
	case mergePrev:
		a.gaps[i-1].End = g.End
	case mergeNext:
		a.gaps[i].Start = g.Start
	default:
		a.gaps = append(a.gaps, Gap{})
		copy(a.gaps[i+1:], a.gaps[i:])
		a.gaps[i] = g
	}
}

// Check verifies the free list invariants and returns the first violation found.
func (a *Allocator) Check() error {
	for i, g := range a.gaps {
		if g.Start < 0 || g.End < g.Start || g.End >= a.length {
			return fmt.Errorf("gap %d [%d, %d] is invalid for file of %d bytes", i, g.Start, g.End, a.length)
		}
		if i == 0 {
			continue
		}
		prev := a.gaps[i-1]
		if prev.End >= g.Start {
			return fmt.Errorf("gap %d [%d, %d] overlaps [%d, %d]", i, g.Start, g.End, prev.Start, prev.End)
		}
		if prev.End+1 == g.Start {
			return fmt.Errorf("gap %d [%d, %d] is adjacent to [%d, %d]", i, g.Start, g.End, prev.Start, prev.End)
		}
	}
	return nil
}
