package gap

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertGaps(t *testing.T, a *Allocator, expected []Gap) {
	t.Helper()
	if expected == nil {
		expected = []Gap{}
	}
	if diff := cmp.Diff(expected, a.Gaps()); diff != "" {
		t.Fatalf("gap list mismatch (-want +got):\n%s", diff)
	}
	if err := a.Check(); err != nil {
		t.Fatalf("invariant violation: %v", err)
	}
}

func assertPanics(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic")
		}
	}()
	f()
}

func TestAllocateGrowsFile(t *testing.T) {
	t.Run("Tail of the extension becomes a gap", func(t *testing.T) {
		a := New(1024)
		if off := a.Allocate(100); off != 0 {
			t.Fatalf("expected offset 0, got %d", off)
		}
		if a.Len() != 1024 {
			t.Errorf("expected file length 1024, got %d", a.Len())
		}
		assertGaps(t, a, []Gap{{Start: 100, End: 1023}})
	})

	t.Run("Large allocation grows by its own size", func(t *testing.T) {
		a := New(1024)
		if off := a.Allocate(4096); off != 0 {
			t.Fatalf("expected offset 0, got %d", off)
		}
		if a.Len() != 4096 {
			t.Errorf("expected file length 4096, got %d", a.Len())
		}
		assertGaps(t, a, nil)
	})

	t.Run("Too small tail gap is skipped", func(t *testing.T) {
		a := New(1024)
		a.Allocate(1000)
		off := a.Allocate(100)
		if off != 1024 {
			t.Fatalf("expected offset 1024, got %d", off)
		}
		if a.Len() != 2048 {
			t.Errorf("expected file length 2048, got %d", a.Len())
		}
		assertGaps(t, a, []Gap{{Start: 1000, End: 1023}, {Start: 1124, End: 2047}})
	})

	t.Run("Default extend", func(t *testing.T) {
		a := New(0)
		a.Allocate(1)
		if a.Len() != DefaultExtend {
			t.Errorf("expected file length %d, got %d", DefaultExtend, a.Len())
		}
	})

	t.Run("Non-positive allocation panics", func(t *testing.T) {
		a := New(1024)
		assertPanics(t, func() { a.Allocate(0) })
		assertPanics(t, func() { a.Allocate(-1) })
	})
}

func TestAllocateFirstFit(t *testing.T) {
	a := New(1000)
	offsets := make([]int64, 10)
	for i := range offsets {
		offsets[i] = a.Allocate(100)
		if offsets[i] != int64(i*100) {
			t.Fatalf("expected offset %d, got %d", i*100, offsets[i])
		}
	}
	assertGaps(t, a, nil)

	a.Free(offsets[2], 100)
	a.Free(offsets[6], 100)
	assertGaps(t, a, []Gap{{Start: 200, End: 299}, {Start: 600, End: 699}})

	// The exact fit consumes the whole gap.
	if off := a.Allocate(100); off != 200 {
		t.Fatalf("expected first-fit offset 200, got %d", off)
	}
	assertGaps(t, a, []Gap{{Start: 600, End: 699}})

	// A smaller allocation shrinks the gap from its start.
	if off := a.Allocate(40); off != 600 {
		t.Fatalf("expected offset 600, got %d", off)
	}
	assertGaps(t, a, []Gap{{Start: 640, End: 699}})
}

func TestFreeReuseSameOffset(t *testing.T) {
	a := New(DefaultExtend)
	first := a.Allocate(100)
	a.Free(first, 100)
	assertGaps(t, a, []Gap{{Start: 0, End: DefaultExtend - 1}})
	second := a.Allocate(100)
	if first != second {
		t.Fatalf("expected freed offset %d to be reused, got %d", first, second)
	}
}

func TestFreeMerges(t *testing.T) {
	newFull := func() *Allocator {
		a := New(500)
		for range 5 {
			a.Allocate(100)
		}
		return a
	}

	testCases := []struct {
		name     string
		frees    [][2]int64
		expected []Gap
	}{
		{"No neighbours", [][2]int64{{200, 100}}, []Gap{{200, 299}}},
		{"Merge with previous", [][2]int64{{100, 100}, {200, 100}}, []Gap{{100, 299}}},
		{"Merge with next", [][2]int64{{300, 100}, {200, 100}}, []Gap{{200, 399}}},
		{"Merge with both", [][2]int64{{100, 100}, {300, 100}, {200, 100}}, []Gap{{100, 399}}},
		{"Insert between", [][2]int64{{0, 100}, {400, 100}, {200, 100}}, []Gap{{0, 99}, {200, 299}, {400, 499}}},
		{"Everything", [][2]int64{{400, 100}, {0, 100}, {300, 100}, {100, 100}, {200, 100}}, []Gap{{0, 499}}},
		{"Zero length is ignored", [][2]int64{{200, 0}}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := newFull()
			for _, f := range tc.frees {
				a.Free(f[0], f[1])
			}
			assertGaps(t, a, tc.expected)
		})
	}
}

func TestFreeCorruption(t *testing.T) {
	a := New(1000)
	a.Allocate(100)
	a.Allocate(100)
	a.Free(0, 100)

	t.Run("Double free", func(t *testing.T) {
		assertPanics(t, func() { a.Free(0, 100) })
	})
	t.Run("Overlaps previous", func(t *testing.T) {
		assertPanics(t, func() { a.Free(50, 100) })
	})
	t.Run("Overlaps next", func(t *testing.T) {
		assertPanics(t, func() { a.Free(150, 100) })
	})
	t.Run("Outside file", func(t *testing.T) {
		assertPanics(t, func() { a.Free(990, 100) })
	})
}

func TestAllocatorInvariantRandom(t *testing.T) {
	const seed = 20260101
	r := rand.New(rand.NewSource(seed))
	t.Logf("Using random seed: %d", seed)

	type region struct{ off, n int64 }
	a := New(4 * KiB)
	var live []region

	for range 2000 {
		if len(live) > 0 && r.Intn(3) == 0 {
			i := r.Intn(len(live))
			a.Free(live[i].off, live[i].n)
			live = append(live[:i], live[i+1:]...)
		} else {
			n := int64(1 + r.Intn(3*KiB))
			live = append(live, region{a.Allocate(n), n})
		}
		if err := a.Check(); err != nil {
			t.Fatalf("invariant violation: %v", err)
		}
	}

	// Live regions must never overlap each other or a gap.
	owner := make([]int, a.Len())
	for i, reg := range live {
		for b := reg.off; b < reg.off+reg.n; b++ {
			if owner[b] != 0 {
				t.Fatalf("region %d overlaps region %d at byte %d", i, owner[b]-1, b)
			}
			owner[b] = i + 1
		}
	}
	for _, g := range a.Gaps() {
		for b := g.Start; b <= g.End; b++ {
			if owner[b] != 0 {
				t.Fatalf("gap [%d, %d] overlaps live region %d", g.Start, g.End, owner[b]-1)
			}
		}
	}

	for _, reg := range live {
		a.Free(reg.off, reg.n)
	}
	assertGaps(t, a, []Gap{{Start: 0, End: a.Len() - 1}})
}
