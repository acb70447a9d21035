// Package annbuf implements a fixed-capacity announcement buffer: a
// concurrently-writable staging area for proof-of-work announcement metadata
// that locks into an immutable, hash-sorted, range-partitioned table.
//
// Many producer goroutines push announcements into an open buffer without
// taking locks; slot ownership is granted by an atomic fetch-and-add on the
// write cursor, so no two pushers ever touch the same slot. A coordinator
// then calls Lock once all pushers are quiescent, which sorts the filled
// prefix by hash prefix and records the range boundaries. After that the
// buffer is read-only until Reset.
package annbuf

import (
	"encoding/binary"
	"sync/atomic"
)

// Hash is the full 32-byte cryptographic hash of an announcement. The buffer
// never computes hashes; callers supply them precomputed alongside payloads.
type Hash [32]byte

// Pfx returns the big-endian 64-bit prefix of the hash. It is the sort and
// range key for every record derived from this hash.
func (h *Hash) Pfx() uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// DataBuf is the external byte store that physically holds announcement
// payloads. PutAnn must be safe for concurrent calls on distinct locations;
// it is assumed to succeed for any location the buffer legitimately owns, so
// it reports nothing back.
type DataBuf interface {
	PutAnn(mloc int, ann []byte, hash *Hash)
}

// AnnData is the per-announcement metadata record: the sort/range key and the
// absolute location of the raw bytes in the DataBuf.
type AnnData struct {
	HashPfx uint64 `cbor:"h"`
	Mloc    int    `cbor:"m"`
}

// Buf collects announcement metadata from concurrent pushers, then locks into
// a sorted, partitioned, read-only table.
//
// The record at slot i always owns DataBuf location baseOffset+i; that
// mapping is fixed the moment the slot is claimed and survives the sort
// (records move, Mloc values don't).
type Buf struct {
	db         DataBuf
	baseOffset int

	// nextAnnIndex is the write cursor: every push claims its span with one
	// atomic add here. May transiently overshoot Capacity between the add and
	// the clamping store; readers go through NextAnnIndex which clamps.
	nextAnnIndex int64
	locked       int32 // 1 => sorted/partitioned, read-only until Reset

	annData []AnnData // len == Capacity, preallocated, never reallocated
	// bounds[k] is the cumulative end offset of range k in the sorted prefix.
	// Valid only while locked. Unused trailing entries are set to the filled
	// length so every configured range index stays queryable.
	bounds []int

	config Config
}

// New returns an empty, unlocked buffer whose slot i maps to DataBuf location
// baseOffset+i. The config is validated and defaulted; see Config.
func New(db DataBuf, baseOffset int, config Config) (*Buf, error) {
	if db == nil {
		return nil, wrapOp("new", ErrNilStore)
	}
	cfg, err := config.validate()
	if err != nil {
		return nil, wrapOp("new", err)
	}
	return &Buf{
		db:         db,
		baseOffset: baseOffset,
		annData:    make([]AnnData, cfg.Capacity),
		bounds:     make([]int, cfg.BucketCount),
		config:     cfg,
	}, nil
}

// PushAnns claims slots for the selected announcements and writes them.
//
// anns is a batch of candidate payloads, hashes the per-candidate precomputed
// hashes (indexed by candidate position), and indexes selects which
// candidates to insert. A single atomic add reserves len(indexes) contiguous
// slots; that reservation is the only synchronization between concurrent
// pushers, and disjoint spans are what make the lock-free writes safe.
//
// Returns the number of records actually inserted. A short or zero count
// means the buffer hit capacity: the claim is clamped, the cursor is pinned
// at Capacity so later pushers reserve nothing, and the caller routes the
// remainder to another buffer. That is a normal outcome, not an error.
// Pushing into a locked buffer is a state-machine violation and returns
// ErrLocked.
func (b *Buf) PushAnns(anns [][]byte, indexes []int, hashes []Hash) (int, error) {
	if atomic.LoadInt32(&b.locked) == 1 {
		return 0, wrapOp("push", ErrLocked)
	}

	// Claim the span. The add can push the cursor past Capacity; the store
	// below pins it back so NextAnnIndex stays meaningful and every later
	// claim starts at or beyond Capacity.
	start := int(atomic.AddInt64(&b.nextAnnIndex, int64(len(indexes)))) - len(indexes)
	if start >= b.config.Capacity {
		atomic.StoreInt64(&b.nextAnnIndex, int64(b.config.Capacity))
		return 0, nil
	}
	if start+len(indexes) > b.config.Capacity {
		indexes = indexes[:b.config.Capacity-start]
		atomic.StoreInt64(&b.nextAnnIndex, int64(b.config.Capacity))
	}

	for i, ci := range indexes {
		slot := start + i
		mloc := b.baseOffset + slot
		b.annData[slot] = AnnData{HashPfx: hashes[ci].Pfx(), Mloc: mloc}
		b.db.PutAnn(mloc, anns[ci], &hashes[ci])
	}
	return len(indexes), nil
}

// Lock transitions the buffer to its immutable state: the filled prefix is
// sorted ascending by hash prefix and partitioned into ranges by
// HashPfx mod BucketCount.
//
// The caller must have quiesced all pushers first; Lock takes no locks of its
// own and only defends against misuse it can detect (locking twice returns
// ErrLocked).
//
// The range scan records a boundary at every bucket-id change in the sorted
// sequence. Because the bucket id is a modulus of the sort key, a sorted
// sequence can legally wrap through the id space more than once; if that
// produces more than BucketCount-1 boundaries the scan aborts with
// ErrRangeOverflow and the buffer stays unlocked (records sorted but
// unpartitioned; Reset is the way out). Callers avoid this by sizing
// BucketCount against the hash-prefix spread of a full buffer.
func (b *Buf) Lock() error {
	if atomic.LoadInt32(&b.locked) == 1 {
		return wrapOp("lock", ErrLocked)
	}

	n := b.NextAnnIndex()
	sortByPfx(b.annData[:n], b.config.SortWorkers)

	buckets := uint64(b.config.BucketCount)
	r := 0
	if n > 0 {
		pfx := b.annData[0].HashPfx % buckets
		for i := 1; i < n; i++ {
			p := b.annData[i].HashPfx % buckets
			if p == pfx {
				continue
			}
			if r == b.config.BucketCount-1 {
				return wrapOp("lock", ErrRangeOverflow)
			}
			b.bounds[r] = i
			pfx = p
			r++
		}
	}
	// Final boundary is the filled length; so are all unused trailing bounds,
	// which keeps every range in [0, BucketCount) well-defined (empty past the
	// last transition) even when fewer ids were observed.
	for ; r < b.config.BucketCount; r++ {
		b.bounds[r] = n
	}

	atomic.StoreInt32(&b.locked, 1)
	return nil
}

// Reset returns the buffer to the open/empty state for the next round: cursor
// zeroed, lock cleared, boundary data discarded. The caller must ensure no
// pusher or reader is still active; Reset itself takes no locks.
func (b *Buf) Reset() {
	atomic.StoreInt64(&b.nextAnnIndex, 0)
	for i := range b.bounds {
		b.bounds[i] = 0
	}
	atomic.StoreInt32(&b.locked, 0)
}

// rangeSpan returns the half-open [begin, end) slice bounds of range r.
// Requires locked and r in range.
func (b *Buf) rangeSpan(r int) (int, int) {
	if r == 0 {
		return 0, b.bounds[0]
	}
	return b.bounds[r-1], b.bounds[r]
}

// RangeCount returns the number of records in range r. Requires a locked
// buffer.
func (b *Buf) RangeCount(r int) (int, error) {
	if atomic.LoadInt32(&b.locked) == 0 {
		return 0, wrapOp("range_count", ErrNotLocked)
	}
	if r < 0 || r >= b.config.BucketCount {
		return 0, wrapOp("range_count", ErrInvalidRange)
	}
	begin, end := b.rangeSpan(r)
	return end - begin, nil
}

// Range returns an iterator over the records of range r in ascending
// hash-prefix order. Requires a locked buffer. Iterators are independent and
// read-only, so any number of goroutines may iterate concurrently once the
// buffer is locked.
func (b *Buf) Range(r int) (*RangeIter, error) {
	if atomic.LoadInt32(&b.locked) == 0 {
		return nil, wrapOp("range", ErrNotLocked)
	}
	if r < 0 || r >= b.config.BucketCount {
		return nil, wrapOp("range", ErrInvalidRange)
	}
	begin, end := b.rangeSpan(r)
	return &RangeIter{data: b.annData[begin:end], pos: -1}, nil
}

// ReadReadyAnns copies the whole sorted prefix into out, which must hold at
// least NextAnnIndex records. Requires a locked buffer. This is the handoff
// to the proof-construction stage.
func (b *Buf) ReadReadyAnns(out []AnnData) error {
	if atomic.LoadInt32(&b.locked) == 0 {
		return wrapOp("read_ready", ErrNotLocked)
	}
	n := b.NextAnnIndex()
	if len(out) < n {
		return wrapOp("read_ready", ErrShortDst)
	}
	copy(out, b.annData[:n])
	return nil
}

// NextAnnIndex returns the number of slots claimed so far, clamped to
// Capacity. Safe from any goroutine; while the buffer is open the value is an
// eventually-consistent snapshot.
func (b *Buf) NextAnnIndex() int {
	n := int(atomic.LoadInt64(&b.nextAnnIndex))
	if n > b.config.Capacity {
		n = b.config.Capacity
	}
	return n
}

// BaseOffset returns the DataBuf location of slot 0.
func (b *Buf) BaseOffset() int {
	return b.baseOffset
}

// Locked reports whether the buffer has been locked.
func (b *Buf) Locked() bool {
	return atomic.LoadInt32(&b.locked) == 1
}

// RangeIter walks one range of a locked buffer. Zero or more calls to Next,
// each followed by Ann while it returned true. Rewind restarts the sequence.
type RangeIter struct {
	data []AnnData
	pos  int
}

// Next advances to the next record and reports whether one exists.
func (it *RangeIter) Next() bool {
	if it.pos+1 >= len(it.data) {
		return false
	}
	it.pos++
	return true
}

// Ann returns the current record. Valid only after Next returned true.
func (it *RangeIter) Ann() AnnData {
	return it.data[it.pos]
}

// Rewind restarts the iterator at the beginning of its range.
func (it *RangeIter) Rewind() {
	it.pos = -1
}
