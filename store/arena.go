// Package store provides a fixed-record in-memory arena implementing the
// annbuf.DataBuf byte store: a preallocated slab addressed by absolute
// announcement location, with per-record checksums verified on read.
//
// The arena performs no synchronization of its own. Location ownership comes
// from the announcement buffer's claim protocol (each location is written by
// exactly one goroutine), so concurrent PutAnn calls on distinct locations
// are safe, and reads are safe once the owning buffer is locked.
package store

import (
	"errors"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"

	"github.com/pktlabs/annbuf"
)

var _ annbuf.DataBuf = (*Arena)(nil)

var (
	ErrInvalidConfig = errors.New("invalid arena configuration")
	ErrBadLocation   = errors.New("location out of arena bounds")
	ErrUnwritten     = errors.New("location has not been written")
	ErrChecksum      = errors.New("payload checksum mismatch")
	ErrOversized     = errors.New("announcement exceeds record size")
)

// Config fixes the arena's shape at construction.
type Config struct {
	// Records is the number of addressable locations, [0, Records).
	Records int

	// RecordSize is the slab bytes reserved per location. Announcements may
	// be shorter; longer ones are rejected at Put with a panic, since the
	// buffer contract gives Put no way to fail.
	RecordSize int

	// UseMmap backs the slab with an anonymous memory mapping instead of the
	// Go heap, keeping multi-gigabyte arenas out of the garbage collector's
	// way. Ignored on platforms without mmap.
	UseMmap bool
}

// DefaultConfig sizes the arena for one default-shaped announcement buffer
// holding 1 KiB announcements.
func DefaultConfig() Config {
	return Config{
		Records:    1 << 16,
		RecordSize: 1024,
	}
}

// Arena is a fixed-shape byte store for announcement payloads.
type Arena struct {
	slab    []byte // Records * RecordSize bytes
	mmapped bool

	hashes []annbuf.Hash
	sums   []uint64 // xxhash64 of each stored payload
	lens   []int32  // stored length + 1; 0 => never written
	rec    int
}

// New allocates the arena. With UseMmap the slab comes from an anonymous
// private mapping and must be released with Close.
func New(cfg Config) (*Arena, error) {
	if cfg.Records <= 0 || cfg.RecordSize <= 0 {
		return nil, ErrInvalidConfig
	}
	slab, mmapped, err := mapSlab(cfg.Records*cfg.RecordSize, cfg.UseMmap)
	if err != nil {
		return nil, fmt.Errorf("arena slab: %w", err)
	}
	return &Arena{
		slab:    slab,
		mmapped: mmapped,
		hashes:  make([]annbuf.Hash, cfg.Records),
		sums:    make([]uint64, cfg.Records),
		lens:    make([]int32, cfg.Records),
		rec:     cfg.RecordSize,
	}, nil
}

// PutAnn stores an announcement payload and its hash at mloc. Implements
// annbuf.DataBuf. Panics on a location outside the arena or a payload larger
// than the record size: both mean the caller wrote outside the window it was
// assigned, which the DataBuf contract rules out.
func (a *Arena) PutAnn(mloc int, ann []byte, hash *annbuf.Hash) {
	if mloc < 0 || mloc >= len(a.lens) {
		panic(fmt.Sprintf("store: put at location %d outside arena of %d records", mloc, len(a.lens)))
	}
	if len(ann) > a.rec {
		panic(fmt.Sprintf("store: %d byte announcement exceeds %d byte record", len(ann), a.rec))
	}
	copy(a.slab[mloc*a.rec:], ann)
	a.hashes[mloc] = *hash
	a.sums[mloc] = xxhash.Sum64(ann)
	a.lens[mloc] = int32(len(ann)) + 1
}

// GetAnn returns a copy of the payload and the hash stored at mloc, verifying
// the payload checksum first.
func (a *Arena) GetAnn(mloc int) ([]byte, *annbuf.Hash, error) {
	if mloc < 0 || mloc >= len(a.lens) {
		return nil, nil, ErrBadLocation
	}
	if a.lens[mloc] == 0 {
		return nil, nil, ErrUnwritten
	}
	n := int(a.lens[mloc]) - 1
	ann := append([]byte(nil), a.slab[mloc*a.rec:mloc*a.rec+n]...)
	if xxhash.Sum64(ann) != a.sums[mloc] {
		return nil, nil, ErrChecksum
	}
	return ann, &a.hashes[mloc], nil
}

// Records returns the number of addressable locations.
func (a *Arena) Records() int {
	return len(a.lens)
}

// Close releases the slab mapping, if any. The arena must not be used after.
func (a *Arena) Close() error {
	if !a.mmapped {
		a.slab = nil
		return nil
	}
	slab := a.slab
	a.slab = nil
	a.mmapped = false
	return unmapSlab(slab)
}
