package bufpage

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	ChunkSize64K = 64 * KiB
	ChunkSize1M  = 1 * MiB
	ChunkSize4M  = 4 * MiB
)

// chunkSizes are the scratch chunk size classes ordered by smallest to largest.
//   - The smallest class covers tiles of a few small banks without wasting a large mapping.
//   - The largest class covers a typical tile; larger requests fall back to the Go heap.
var chunkSizes = [3]int{
	ChunkSize64K,
	ChunkSize1M,
	ChunkSize4M,
}

func init() {
	// Runtime assertion.
	if !sort.IntsAreSorted(chunkSizes[:]) {
		panic(errors.New("chunk sizes must be sorted in ascending order"))
	}
}

type ChunkPoolConfig struct {
	// Number of free chunks for each chunk size the pool can hold before starting to release memory.
	FreeThresholds [len(chunkSizes)]int
}

func DefaultChunkPoolConfig() ChunkPoolConfig {
	return ChunkPoolConfig{FreeThresholds: [len(chunkSizes)]int{16, 4, 2}}
}

// ChunkPool is a thread-safe pool of off-heap scratch chunks used to flatten
// entries on their way to and from a swap file.
//
// Get rounds a request up to the smallest size class that fits it, so a
// chunk can be reused for entries of different sizes.
type ChunkPool struct {
	mu     sync.Mutex
	logger *slog.Logger
	free   [len(chunkSizes)][][]byte

	// freeThresholds represents the number of free chunks for each size the pool
	// can hold before starting to release memory.
	freeThresholds [len(chunkSizes)]int
}

// NewChunkPool creates a new, empty chunk pool.
func NewChunkPool(config ChunkPoolConfig, logger *slog.Logger) *ChunkPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkPool{logger: logger, freeThresholds: config.FreeThresholds}
}

// Sizes returns a slice of supported chunk sizes.
func (p *ChunkPool) Sizes() []int {
	return chunkSizes[:]
}

// sizeClass returns the index of the smallest chunk size that fits size, or -1.
func sizeClass(size int) int {
	for i, n := range chunkSizes {
		if size <= n {
			return i
		}
	}
	return -1
}

// classOf returns the index of the chunk size equal to size, or -1.
func classOf(size int) int {
	for i, n := range chunkSizes {
		if size == n {
			return i
		}
	}
	return -1
}

// Get returns a scratch buffer of length size. Requests larger than the largest
// chunk size are served from the Go heap.
func (p *ChunkPool) Get(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	i := sizeClass(size)
	if i < 0 {
		return make([]byte, size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[i]) == 0 {
		p.alloc(i, 1)
	}
	n := len(p.free[i]) - 1
	c := p.free[i][n]
	p.free[i] = p.free[i][:n]
	return c[:size]
}

// Put returns a buffer obtained from Get to the pool.
// It does nothing if the buffer was not a pooled chunk.
func (p *ChunkPool) Put(c []byte) {
	if c == nil {
		return
	}
	i := classOf(cap(c))
	if i < 0 {
		return
	}
	c = c[:cap(c)] // Ensure the chunk is reset to its full capacity before returning.

	p.mu.Lock()
	p.free[i] = append(p.free[i], c)
	var chunksToUnmap [][]byte
	p.free[i], chunksToUnmap = releaseChunks(p.free[i], p.freeThresholds[i])
	p.mu.Unlock()

	// Perform unmap outside of the lock to avoid blocking other operations.
	for _, chunk := range chunksToUnmap {
		p.unmap(chunk)
	}
}

// Allocate ensures that at least numChunks are available in the pool for the
// specified size. This is useful for pre-warming a pool to a specific capacity.
// It will panic if an unsupported size is requested.
func (p *ChunkPool) Allocate(chunkSize int, numChunks int) {
	if numChunks <= 0 {
		return
	}
	i := classOf(chunkSize)
	if i < 0 {
		panic(fmt.Sprintf("unsupported chunk size for pre-allocation: %d", chunkSize))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := numChunks - len(p.free[i]); n > 0 {
		p.alloc(i, n)
	}
}

// Release unmaps all free chunks.
func (p *ChunkPool) Release() {
	p.mu.Lock()
	free := p.free
	p.free = [len(chunkSizes)][][]byte{}
	p.mu.Unlock()

	for _, list := range free {
		for _, chunk := range list {
			p.unmap(chunk)
		}
	}
}

// unmap releases the memory of a chunk back to the operating system.
func (p *ChunkPool) unmap(c []byte) {
	if err := unix.Munmap(c); err != nil {
		p.logger.Error("failed to unmap chunk", "error", err)
	}
}

// alloc maps numChunks chunks of size class i and appends them to its free list.
// Every chunk is its own mapping so it can be unmapped on its own.
// It assumes the caller holds the mutex.
func (p *ChunkPool) alloc(i int, numChunks int) {
	chunkSize := chunkSizes[i]
	for range numChunks {
		// Use unix.Mmap to allocate virtual memory that is not part the Go heap.
		// This effectively reduces how often the GOGC has to run.
		data, err := unix.Mmap(-1, 0, chunkSize,
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_ANON|unix.MAP_PRIVATE,
		)
		if err != nil {
			panic(fmt.Errorf("cannot allocate %d bytes via mmap: %w", chunkSize, err))
		}
		p.free[i] = append(p.free[i], data[:chunkSize:chunkSize])
	}
}

// numFree returns the number of available chunks for a given chunk size.
// It is primarily intended as helper method in tests.
func (p *ChunkPool) numFree(size int) int {
	i := classOf(size)
	if i < 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[i])
}

// releaseChunks is a generic helper that trims the free list if it exceeds the given threshold.
// It returns the updated list and a list of any chunks that were removed and should be unmapped.
func releaseChunks[P any](freeList []P, threshold int) (newList []P, toUnmap []P) {
	if threshold > 0 && len(freeList) > threshold {
		// Release half of the free chunks to prevent thrashing around the threshold.
		freeCount := len(freeList) / 2
		toUnmap = freeList[:freeCount]
		newList = freeList[freeCount:]
		return newList, toUnmap
	}
	return freeList, nil
}
