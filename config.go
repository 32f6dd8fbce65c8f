package bufpage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/holmberd/go-bufpage/internal/gap"
	"github.com/holmberd/go-bufpage/internal/store"
	"github.com/tailscale/hujson"
)

type Config struct {
	// Capacity is the maximum number of bytes the cache's backing store may hold.
	Capacity int64

	// Persistent makes a full cache refuse new entries instead of evicting
	// the oldest ones, so no data is silently lost.
	Persistent bool

	SwapDir     string // Directory for the swap file; empty means os.TempDir.
	SwapPattern string // os.CreateTemp pattern of the swap file name.
	SwapExtend  int64  // Minimum number of bytes the swap file grows by.

	ScratchPool ChunkPoolConfig // Pool of scratch chunks used for swap I/O.

	Logger *slog.Logger // Nil means slog.Default.
}

func DefaultConfig() Config {
	return Config{
		Capacity:    256 * MiB,
		SwapPattern: store.DefaultSwapPattern,
		SwapExtend:  gap.DefaultExtend,
		ScratchPool: DefaultChunkPoolConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("invalid config: capacity must be positive, got %d", c.Capacity))
	}
	if c.SwapExtend <= 0 {
		errs = append(errs, fmt.Errorf("invalid config: swap extend must be positive, got %d", c.SwapExtend))
	}
	for i, n := range c.ScratchPool.FreeThresholds {
		if n < 0 {
			errs = append(errs, fmt.Errorf("invalid config: scratch pool threshold %d is negative", i))
		}
	}
	return errors.Join(errs...)
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// byteSize is a size in bytes given either as a number or as a string like "64 MiB".
type byteSize int64

func (b *byteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return err
		}
		if n > math.MaxInt64 {
			return fmt.Errorf("size %q is too large", s)
		}
		*b = byteSize(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("size must be a number or a string: %w", err)
	}
	*b = byteSize(n)
	return nil
}

// fileConfig is the on-disk form of Config. Nil fields keep their defaults.
type fileConfig struct {
	Capacity    *byteSize `json:"capacity"`
	Persistent  *bool     `json:"persistent"`
	SwapDir     *string   `json:"swap_dir"`
	SwapPattern *string   `json:"swap_pattern"`
	SwapExtend  *byteSize `json:"swap_extend"`

	// One threshold per scratch chunk size class, smallest first.
	ScratchPoolThresholds []int `json:"scratch_pool_thresholds"`
}

// LoadConfig reads a cache config from a HuJSON file (JSON with comments
// and trailing commas) on top of DefaultConfig and validates it.
//
//	{
//	    // Evict when more than this is cached.
//	    "capacity": "512 MiB",
//	    "persistent": false,
//	    "swap_dir": "/var/tmp",
//	    // Free 64 KiB, 1 MiB and 4 MiB chunks kept before unmapping.
//	    "scratch_pool_thresholds": [16, 4, 2],
//	}
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	cfg := DefaultConfig()
	if fc.Capacity != nil {
		cfg.Capacity = int64(*fc.Capacity)
	}
	if fc.Persistent != nil {
		cfg.Persistent = *fc.Persistent
	}
	if fc.SwapDir != nil {
		cfg.SwapDir = *fc.SwapDir
	}
	if fc.SwapPattern != nil {
		cfg.SwapPattern = *fc.SwapPattern
	}
	if fc.SwapExtend != nil {
		cfg.SwapExtend = int64(*fc.SwapExtend)
	}
	if fc.ScratchPoolThresholds != nil {
		thresholds := &cfg.ScratchPool.FreeThresholds
		if len(fc.ScratchPoolThresholds) != len(thresholds) {
			return Config{}, fmt.Errorf("invalid config: scratch_pool_thresholds needs %d values, got %d",
				len(thresholds), len(fc.ScratchPoolThresholds))
		}
		copy(thresholds[:], fc.ScratchPoolThresholds)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
