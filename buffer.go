package bufpage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// Buffer is a pageable set of banks of elements.
//
// While a Buffer is locked its banks are resident and may be read and written.
// When the last lock is released and the Buffer is attached to a Cache, the
// banks are handed to the cache and the Buffer is no longer resident until it
// is locked again. A Buffer is shared by reference counting: holders call
// Acquire and Release, and Unshare before writing to a shared Buffer.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	logger          *slog.Logger
	numBanks        int
	elementsPerBank int
	elemType        ElementType
	banks           [][]byte // Nil while the banks are held by the cache.
	shareCount      int
	lockCount       int
	cache           *Cache
	entryID         uint64 // Zero if the banks were never handed to the cache.
	hasExpired      bool
}

type BufferOption func(*Buffer)

// WithCache attaches the buffer to a cache.
func WithCache(c *Cache) BufferOption {
	return func(b *Buffer) {
		b.cache = c
	}
}

func WithLogger(logger *slog.Logger) BufferOption {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// NewBuffer creates a resident, unlocked buffer with zeroed banks and a share count of one.
func NewBuffer(numBanks, elementsPerBank int, t ElementType, opts ...BufferOption) *Buffer {
	if numBanks < 0 || elementsPerBank < 0 {
		panic(fmt.Sprintf("invalid buffer geometry: %d banks of %d elements", numBanks, elementsPerBank))
	}
	b := &Buffer{
		logger:          slog.Default(),
		numBanks:        numBanks,
		elementsPerBank: elementsPerBank,
		elemType:        t,
		shareCount:      1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.banks = b.allocBanks()
	return b
}

func (b *Buffer) NumBanks() int {
	return b.numBanks
}

func (b *Buffer) ElementsPerBank() int {
	return b.elementsPerBank
}

func (b *Buffer) BytesPerElement() int {
	return b.elemType.Size()
}

func (b *Buffer) ElementType() ElementType {
	return b.elemType
}

func (b *Buffer) ShareCount() int {
	return b.shareCount
}

func (b *Buffer) LockCount() int {
	return b.lockCount
}

// EntryID returns the id of the buffer's cache entry, or zero.
func (b *Buffer) EntryID() uint64 {
	return b.entryID
}

// Cache returns the cache the buffer is attached to, or nil.
func (b *Buffer) Cache() *Cache {
	return b.cache
}

// IsResident reports whether the banks are in memory.
func (b *Buffer) IsResident() bool {
	return b.banks != nil
}

// IsFinalized reports whether the last reference to the buffer was released.
func (b *Buffer) IsFinalized() bool {
	return b.shareCount <= 0
}

// HasExpired reports whether the cache evicted the buffer's contents at some point.
// The banks were zeroed when that was detected.
func (b *Buffer) HasExpired() bool {
	return b.hasExpired
}

func (b *Buffer) bytesPerBank() int {
	return b.elementsPerBank * b.elemType.Size()
}

func (b *Buffer) allocBanks() [][]byte {
	banks := make([][]byte, b.numBanks)
	for i := range banks {
		banks[i] = make([]byte, b.bytesPerBank())
	}
	return banks
}

func (b *Buffer) mustBeLive(op string) {
	if b.IsFinalized() {
		panic(fmt.Errorf("invariant violation: %s on a finalized buffer", op))
	}
}

// Acquire adds a reference to the buffer.
func (b *Buffer) Acquire() {
	b.mustBeLive("acquire")
	b.shareCount++
}

// Release drops a reference to the buffer. Releasing the last reference
// flushes its cache entry and frees the banks.
func (b *Buffer) Release() {
	b.mustBeLive("release")
	b.shareCount--
	if b.shareCount > 0 {
		return
	}
	if b.cache != nil && b.entryID != 0 {
		b.cache.Flush(b.entryID)
	}
	b.entryID = 0
	b.banks = nil
	b.lockCount = 0
}

// Lock makes the banks resident and keeps them so until the matching Unlock.
//
// If the cache evicted the buffer's contents, Lock still succeeds in locking
// the buffer: it gives it fresh zeroed banks, marks it as expired and returns
// ErrExpired so the caller knows to repopulate it. Any other error leaves the
// buffer unlocked.
func (b *Buffer) Lock() error {
	b.mustBeLive("lock")
	var err error
	if b.banks == nil {
		err = b.pageIn()
		if err != nil && !errors.Is(err, ErrExpired) {
			return err
		}
	}
	b.lockCount++
	return err
}

// Unlock releases a lock taken by Lock. isDirty reports whether the banks were
// written to while locked. Releasing the last lock hands the banks to the cache.
// If the cache is full the buffer stays resident and the next Unlock retries.
func (b *Buffer) Unlock(isDirty bool) error {
	b.mustBeLive("unlock")
	if b.lockCount <= 0 {
		panic(fmt.Errorf("invariant violation: unlock of an unlocked buffer"))
	}
	if isDirty && b.cache != nil && b.entryID != 0 {
		b.cache.MarkAsDirty(b.entryID)
	}
	b.lockCount--
	if b.lockCount > 0 || b.cache == nil {
		return nil
	}
	return b.pageOut()
}

// pageIn fetches the banks from the cache.
func (b *Buffer) pageIn() error {
	if b.cache == nil || b.entryID == 0 {
		panic(fmt.Errorf("invariant violation: buffer has neither banks nor a cache entry"))
	}
	e, err := b.cache.Fetch(b.entryID)
	if errors.Is(err, ErrExpired) {
		b.logger.Warn("buffer contents expired", "entry", b.entryID)
		b.cache.Flush(b.entryID)
		b.entryID = 0
		b.hasExpired = true
		b.banks = b.allocBanks()
		return err
	}
	if err != nil {
		return fmt.Errorf("page in buffer: %w", err)
	}
	be, ok := e.(*bankEntry)
	if !ok {
		panic(fmt.Errorf("invariant violation: cache entry %d holds %T", b.entryID, e))
	}
	b.banks = be.takeBanks()
	return nil
}

// pageOut hands the banks to the cache.
func (b *Buffer) pageOut() error {
	e := newBankEntry(b.banks, b.bytesPerBank())
	var err error
	if b.entryID == 0 {
		var id uint64
		if id, err = b.cache.Put(e); err == nil {
			b.entryID = id
		}
	} else {
		err = b.cache.Unfetch(b.entryID, e)
	}

	switch {
	case err == nil:
		b.banks = nil
		return nil
	case errors.Is(err, ErrCacheFull):
		b.logger.Debug("cache full, buffer stays resident",
			"entry", b.entryID,
			"size", humanize.IBytes(uint64(e.FlattenedSize())),
		)
		return nil
	default:
		return fmt.Errorf("page out buffer: %w", err)
	}
}

// Attach binds the buffer to a cache, detaching it from its current one.
// The banks stay resident until the next Unlock releases the last lock.
func (b *Buffer) Attach(c *Cache) error {
	b.mustBeLive("attach")
	if c == b.cache {
		return nil
	}
	if err := b.Detach(); err != nil {
		return err
	}
	b.cache = c
	return nil
}

// Detach makes the buffer resident, drops its cache entry and unbinds it from its cache.
func (b *Buffer) Detach() error {
	b.mustBeLive("detach")
	if b.cache == nil {
		return nil
	}
	if b.banks == nil {
		if err := b.pageIn(); err != nil && !errors.Is(err, ErrExpired) {
			return err
		}
	}
	if b.entryID != 0 {
		b.cache.Flush(b.entryID)
	}
	b.entryID = 0
	b.cache = nil
	return nil
}

// Unshare returns a buffer the caller may write to without affecting other holders.
// If the caller holds the only reference the buffer itself is returned. Otherwise
// the caller's reference is released and traded for a private copy attached to the
// same cache.
func (b *Buffer) Unshare() (*Buffer, error) {
	b.mustBeLive("unshare")
	if b.shareCount == 1 {
		return b, nil
	}

	if err := b.Lock(); err != nil && !errors.Is(err, ErrExpired) {
		return nil, err
	}
	dup := NewBuffer(b.numBanks, b.elementsPerBank, b.elemType, WithCache(b.cache), WithLogger(b.logger))
	if err := dup.Lock(); err != nil {
		return nil, errors.Join(err, b.Unlock(false))
	}
	for i, bank := range b.banks {
		copy(dup.banks[i], bank)
	}
	if err := dup.Unlock(false); err != nil {
		dup.Release()
		return nil, errors.Join(err, b.Unlock(false))
	}
	if err := b.Unlock(false); err != nil {
		dup.Release()
		return nil, err
	}
	b.Release()
	return dup, nil
}

// Bank returns the bytes of bank i. The buffer must be resident.
func (b *Buffer) Bank(i int) []byte {
	b.mustBeResident()
	return b.banks[i]
}

// ElementBytes returns the bytes of element index of bank. The buffer must be resident.
func (b *Buffer) ElementBytes(bank, index int) []byte {
	b.mustBeResident()
	n := b.elemType.Size()
	return b.banks[bank][index*n : (index+1)*n : (index+1)*n]
}

// Element returns the value of element index of bank. The buffer must be resident.
func (b *Buffer) Element(bank, index int) float64 {
	return b.elemType.decode(b.ElementBytes(bank, index))
}

// SetElement stores v as element index of bank. The buffer must be resident.
func (b *Buffer) SetElement(bank, index int, v float64) {
	b.elemType.encode(b.ElementBytes(bank, index), v)
}

func (b *Buffer) mustBeResident() {
	if b.banks == nil {
		panic(fmt.Errorf("invariant violation: access to a buffer that is not resident"))
	}
}
