package annbuf

import (
	"runtime"

	"github.com/pktlabs/annbuf/internal/mathutil"
)

const (
	// Defaults used by DefaultConfig(). The capacity matches a typical
	// per-round announcement batch; the bucket count trades merge fan-in
	// against partition-overflow headroom.
	defaultCapacity    = 1 << 16
	defaultBucketCount = 64

	// Cap sort parallelism; past this point chunk merges dominate.
	maxSortWorkers = 32
)

// Config fixes a buffer's shape at construction. Capacity and BucketCount
// never change afterwards: the record array is preallocated once and never
// grows, and the boundary array has exactly BucketCount entries.
type Config struct {
	// Capacity is the maximum record count. Claims past it are clamped.
	Capacity int

	// BucketCount is the number of partition ranges produced by Lock. Must
	// leave enough headroom over the bucket-id transitions of a sorted full
	// buffer; see Lock.
	BucketCount int

	// SortWorkers bounds the goroutines used by Lock's parallel sort.
	// 0 picks a default from runtime.NumCPU.
	SortWorkers int
}

// DefaultConfig returns a general-purpose buffer shape.
func DefaultConfig() Config {
	return Config{
		Capacity:    defaultCapacity,
		BucketCount: defaultBucketCount,
	}
}

// validate fills defaults and rejects shapes the buffer cannot honor.
func (c Config) validate() (Config, error) {
	if c.Capacity <= 0 || c.BucketCount <= 0 {
		return c, ErrInvalidConfig
	}
	if c.SortWorkers < 0 {
		return c, ErrInvalidConfig
	}
	if c.SortWorkers == 0 {
		c.SortWorkers = runtime.NumCPU()
	}
	if c.SortWorkers > maxSortWorkers {
		c.SortWorkers = maxSortWorkers
	}
	// Power-of-two worker count keeps the pairwise merge tree balanced.
	c.SortWorkers = mathutil.NextPowerOf2(c.SortWorkers)
	return c, nil
}
