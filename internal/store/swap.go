package store

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/holmberd/go-bufpage/internal/gap"
)

const DefaultSwapPattern = "bufpage-swap-*"

// SwapConfig configures a swap store.
type SwapConfig struct {
	Dir     string       // Directory of the swap file; empty means os.TempDir.
	Pattern string       // os.CreateTemp pattern for the swap file name.
	Extend  int64        // Minimum swap file growth in bytes.
	Pool    ChunkPooler  // Scratch buffers for serialization; nil allocates on the heap.
	Logger  *slog.Logger // Nil means slog.Default.
}

// swapSlot is the side data a swap store keeps per record.
type swapSlot struct {
	offset int64         // Region offset, or -1 if there is no clean copy on disk.
	length int64         // Region length.
	sum    uint64        // xxhash of the region contents.
	elem   *list.Element // Position in the record list; nil while the record is elsewhere.
}

func (sl *swapSlot) isClean() bool {
	return sl.offset >= 0
}

// SwapStore keeps records serialized in a temporary file.
//
// A record removed from the store keeps its disk region: if the entry comes
// back unchanged the region is reused without writing. The region is returned
// to the free list when the record is marked dirty while it lives elsewhere,
// when the record is zapped or when it is freed.
type SwapStore struct {
	recordList
	logger *slog.Logger
	pool   ChunkPooler
	file   *os.File
	path   string
	gaps   *gap.Allocator
	size   int64
	closed bool

	// slots holds every record carrying side data of this store,
	// including records that currently live in another store.
	slots map[*Record]*swapSlot
}

// NewSwapStore creates a swap store backed by a new, unique temporary file.
func NewSwapStore(cfg SwapConfig) (*SwapStore, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultSwapPattern
	}
	if cfg.Pool == nil {
		cfg.Pool = heapPool{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f, err := os.CreateTemp(cfg.Dir, cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("create swap file: %w", err)
	}
	return &SwapStore{
		recordList: newRecordList(),
		logger:     cfg.Logger,
		pool:       cfg.Pool,
		file:       f,
		path:       f.Name(),
		gaps:       gap.New(cfg.Extend),
		slots:      make(map[*Record]*swapSlot),
	}, nil
}

// Path returns the path of the swap file.
func (s *SwapStore) Path() string {
	return s.path
}

// FileLength returns the number of bytes the swap file has grown to.
func (s *SwapStore) FileLength() int64 {
	return s.gaps.Len()
}

// Gaps returns the free regions of the swap file.
func (s *SwapStore) Gaps() []gap.Gap {
	return s.gaps.Gaps()
}

// Add serializes the record's entry into the swap file and releases its payload.
func (s *SwapStore) Add(r *Record) error {
	if s.closed {
		return ErrClosed
	}
	mustBeFree(s, r)
	e := r.Entry()
	if e == nil {
		return fmt.Errorf("swap record %d: %w", r.ID(), ErrNoPayload)
	}

	slot, _ := r.StoreData(s).(*swapSlot)
	isNew := slot == nil
	if isNew {
		slot = &swapSlot{offset: -1}
	}
	if err := s.swapIn(e, slot); err != nil {
		return fmt.Errorf("swap record %d: %w", r.ID(), err)
	}
	slot.elem = s.link(r)
	if isNew {
		r.AddStoreData(s, slot, s.freeSlot, s.dirtySlot)
		s.slots[r] = slot
	}
	r.SetStore(s)
	r.SetStatus(StatusStored)
	s.size += r.Size()
	return nil
}

// Remove reads the record's entry back from the swap file.
// The disk region is kept as a clean copy.
func (s *SwapStore) Remove(r *Record) error {
	if s.closed {
		return ErrClosed
	}
	mustOwn(s, r)
	slot := s.slots[r]
	if err := s.swapOut(r.Entry(), slot); err != nil {
		return fmt.Errorf("swap record %d: %w", r.ID(), err)
	}
	s.detach(r, slot)
	return nil
}

// Evict detaches the record and releases its disk region without reading it
// back, so an unreadable region can still be evicted. The record keeps its
// side data until it is freed.
func (s *SwapStore) Evict(r *Record) {
	mustOwn(s, r)
	slot := s.slots[r]
	s.releaseSlot(slot)
	s.detach(r, slot)
}

// Zap drops the record and its disk region without reading it back.
func (s *SwapStore) Zap(r *Record) {
	mustOwn(s, r)
	slot := s.slots[r]
	s.releaseSlot(slot)
	s.detach(r, slot)
	r.Free()
}

func (s *SwapStore) Size() int64 {
	return s.size
}

func (s *SwapStore) Pop() (*Record, error) {
	r := s.Peek()
	if r == nil {
		return nil, nil
	}
	if err := s.Remove(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Peek returns the oldest record. Its entry is still swapped out.
func (s *SwapStore) Peek() *Record {
	return s.front()
}

// Close frees the records in the store, detaches its side data from records
// living elsewhere and removes the swap file.
func (s *SwapStore) Close() error {
	if s.closed {
		return nil
	}
	s.each(s.Zap)
	for r := range s.slots {
		r.RemoveStoreData(s, false)
		delete(s.slots, r)
	}
	s.closed = true

	var errs []error
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close swap file: %w", err))
	}
	if err := os.Remove(s.path); err != nil {
		s.logger.Error("failed to remove swap file", "path", s.path, "error", err)
		errs = append(errs, fmt.Errorf("remove swap file: %w", err))
	}
	return errors.Join(errs...)
}

func (s *SwapStore) detach(r *Record, slot *swapSlot) {
	s.unlink(slot.elem)
	slot.elem = nil
	r.SetStore(nil)
	r.SetStatus(StatusUndefined)
	s.size -= r.Size()
}

// swapIn writes the entry's payload to disk, reusing the slot's region if it
// already holds identical bytes.
func (s *SwapStore) swapIn(e Entry, slot *swapSlot) error {
	n := e.FlattenedSize()
	buf := s.pool.Get(n)
	defer s.pool.Put(buf)

	if err := e.Flatten(buf); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	sum := xxhash.Sum64(buf)
	if slot.isClean() && slot.length == int64(n) && slot.sum == sum {
		return nil
	}

	s.releaseSlot(slot)
	if n == 0 {
		slot.offset, slot.length, slot.sum = 0, 0, sum
		return nil
	}
	offset, err := s.allocate(int64(n))
	if err != nil {
		return s.restore(e, buf, err)
	}
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		s.gaps.Free(offset, int64(n))
		return s.restore(e, buf, fmt.Errorf("write swap region: %w", err))
	}
	slot.offset, slot.length, slot.sum = offset, int64(n), sum
	return nil
}

// restore gives the entry its payload back after a failed swap in.
func (s *SwapStore) restore(e Entry, buf []byte, cause error) error {
	if err := e.Unflatten(buf); err != nil {
		return errors.Join(cause, fmt.Errorf("restore payload: %w", err))
	}
	return cause
}

// swapOut reads the slot's region and unflattens it into the entry.
func (s *SwapStore) swapOut(e Entry, slot *swapSlot) error {
	if !slot.isClean() {
		panic(fmt.Errorf("invariant violation: swapped record has no disk region"))
	}
	buf := s.pool.Get(int(slot.length))
	defer s.pool.Put(buf)

	if slot.length > 0 {
		if n, err := s.file.ReadAt(buf, slot.offset); n < len(buf) {
			return fmt.Errorf("read swap region at %d: %w", slot.offset, err)
		}
	}
	if xxhash.Sum64(buf) != slot.sum {
		return fmt.Errorf("region at %d: %w", slot.offset, ErrSwapCorrupted)
	}
	if err := e.Unflatten(buf); err != nil {
		return fmt.Errorf("unflatten: %w", err)
	}
	return nil
}

// allocate reserves a region, growing the swap file when the allocator did.
func (s *SwapStore) allocate(n int64) (int64, error) {
	before := s.gaps.Len()
	offset := s.gaps.Allocate(n)
	if after := s.gaps.Len(); after != before {
		if err := s.file.Truncate(after); err != nil {
			s.gaps.Free(offset, n)
			return 0, fmt.Errorf("grow swap file: %w", err)
		}
		s.logger.Debug("swap file grown",
			"path", s.path,
			"size", humanize.IBytes(uint64(after)),
		)
	}
	return offset, nil
}

// releaseSlot returns the slot's region to the free list.
func (s *SwapStore) releaseSlot(slot *swapSlot) {
	if slot.isClean() {
		s.gaps.Free(slot.offset, slot.length)
	}
	slot.offset, slot.length, slot.sum = -1, 0, 0
}

func (s *SwapStore) freeSlot(_ Store, r *Record, data any) {
	s.releaseSlot(data.(*swapSlot))
	delete(s.slots, r)
}

// dirtySlot drops the disk copy of an entry that lives in another store,
// since its in-memory bytes are about to change. While the record is in this
// store the disk copy is the only one and is kept.
func (s *SwapStore) dirtySlot(_ Store, r *Record, data any) {
	if r.Store() != Store(s) {
		s.releaseSlot(data.(*swapSlot))
	}
}

// heapPool allocates scratch buffers with make.
type heapPool struct{}

func (heapPool) Get(size int) []byte { return make([]byte, size) }

func (heapPool) Put([]byte) {}
