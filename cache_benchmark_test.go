package bufpage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"
)

// GOMAXPROCS=4 go clean -testcache && go test -bench=BenchmarkBuffer -benchtime=10s -benchmem .

const (
	benchBanks           = 4
	benchElementsPerBank = 64 * 64 // A 64x64 tile.
)

func newBenchCache(b *testing.B, swap bool, capacity int64) *Cache {
	b.Helper()
	cfg := DefaultConfig()
	cfg.Capacity = capacity
	cfg.SwapDir = b.TempDir()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	open := NewHeapCache
	if swap {
		open = NewSwapCache
	}
	c, err := open(cfg)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

// BenchmarkBufferLockUnlock pages a buffer in and out of a cache that
// always has room for it.
func BenchmarkBufferLockUnlock(b *testing.B) {
	for _, swap := range []bool{false, true} {
		for _, dirty := range []bool{false, true} {
			b.Run(fmt.Sprintf("swap=%t/dirty=%t", swap, dirty), func(b *testing.B) {
				c := newBenchCache(b, swap, 256*MiB)

				b.ResetTimer()
				b.ReportAllocs()
				b.RunParallel(func(pb *testing.PB) {
					// Buffers are not safe for concurrent use, so each goroutine pages its own.
					buf := NewBuffer(benchBanks, benchElementsPerBank, Float32, WithCache(c))
					defer buf.Release()
					i := 0
					for pb.Next() {
						if err := buf.Lock(); err != nil {
							panic(fmt.Errorf("failed to lock buffer: %w", err))
						}
						if dirty {
							buf.SetElement(i%benchBanks, i%benchElementsPerBank, float64(i))
						}
						if err := buf.Unlock(dirty); err != nil {
							panic(fmt.Errorf("failed to unlock buffer: %w", err))
						}
						i++
					}
				})
			})
		}
	}
}

// BenchmarkBufferEviction simulates a working set four times larger than the
// cache, so most locks find their buffer evicted.
func BenchmarkBufferEviction(b *testing.B) {
	const numBuffers = 64
	bufferBytes := int64(benchBanks * benchElementsPerBank * Float32.Size())

	for _, swap := range []bool{false, true} {
		b.Run(fmt.Sprintf("swap=%t", swap), func(b *testing.B) {
			c := newBenchCache(b, swap, numBuffers/4*bufferBytes)
			buffers := make([]*Buffer, numBuffers)
			for i := range buffers {
				buffers[i] = NewBuffer(benchBanks, benchElementsPerBank, Float32, WithCache(c))
			}
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))

			b.ResetTimer()
			b.ReportAllocs()
			for range b.N {
				buf := buffers[rng.Intn(numBuffers)]
				if err := buf.Lock(); err != nil && !errors.Is(err, ErrExpired) {
					b.Fatal(err)
				}
				if err := buf.Unlock(true); err != nil {
					b.Fatal(err)
				}
			}
			b.StopTimer()

			var stats Stats
			c.UpdateStats(&stats)
			b.ReportMetric(float64(stats.Evictions)/float64(b.N), "evictions/op")
		})
	}
}
