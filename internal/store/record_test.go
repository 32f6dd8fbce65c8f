package store

import (
	"testing"

	"github.com/holmberd/go-bufpage/internal/testutils"
)

func TestRecordStoreData(t *testing.T) {
	heap := NewHeapStore()
	null := NewNullStore(StatusFetched)
	r := NewRecord(1, testutils.NewMockEntry(testutils.Pattern(16, 0)))

	var freed, dirtied []Store
	free := func(s Store, _ *Record, _ any) { freed = append(freed, s) }
	dirty := func(s Store, _ *Record, _ any) { dirtied = append(dirtied, s) }

	r.AddStoreData(heap, "heap-data", free, dirty)
	r.AddStoreData(null, 42, free, nil)

	if got := r.StoreData(heap); got != "heap-data" {
		t.Errorf("expected heap side data, got %v", got)
	}
	if got := r.StoreData(null); got != 42 {
		t.Errorf("expected null side data, got %v", got)
	}

	r.Dirty()
	if len(dirtied) != 1 || dirtied[0] != Store(heap) {
		t.Errorf("expected only the heap dirty func to run, got %v", dirtied)
	}

	r.RemoveStoreData(null, false)
	if len(freed) != 0 {
		t.Errorf("expected no free func to run, got %d", len(freed))
	}
	if r.StoreData(null) != nil {
		t.Error("expected null side data to be removed")
	}

	r.RemoveStoreData(heap, true)
	if len(freed) != 1 || freed[0] != Store(heap) {
		t.Errorf("expected heap free func to run once, got %v", freed)
	}

	// Removing data that is not there is a no-op.
	r.RemoveStoreData(heap, true)
	if len(freed) != 1 {
		t.Errorf("expected free func not to run again, got %d calls", len(freed))
	}
}

func TestRecordFree(t *testing.T) {
	e := testutils.NewMockEntry(testutils.Pattern(16, 0))
	r := NewRecord(7, e)
	if r.Size() != 16 {
		t.Fatalf("expected size 16, got %d", r.Size())
	}

	heap := NewHeapStore()
	freeCalls := 0
	r.AddStoreData(heap, nil, func(Store, *Record, any) { freeCalls++ }, nil)
	r.SetStatus(StatusStored)

	r.Free()
	if freeCalls != 1 {
		t.Errorf("expected free func to run once, got %d", freeCalls)
	}
	if e.DiscardCalls() != 1 {
		t.Errorf("expected entry to be discarded once, got %d", e.DiscardCalls())
	}
	if r.Entry() != nil || r.Store() != nil {
		t.Error("expected freed record to hold no entry or store")
	}
	if r.Status() != StatusUndefined {
		t.Errorf("expected status %v, got %v", StatusUndefined, r.Status())
	}
}

func TestStatusString(t *testing.T) {
	testCases := []struct {
		status   Status
		expected string
	}{
		{StatusUndefined, "undefined"},
		{StatusStored, "stored"},
		{StatusFetched, "fetched"},
		{StatusDiscarded, "discarded"},
		{Status(9), "Status(9)"},
	}
	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.expected {
			t.Errorf("expected %q, got %q", tc.expected, got)
		}
	}
}
