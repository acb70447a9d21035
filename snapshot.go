package annbuf

import (
	"sync/atomic"

	cbor "github.com/fxamacker/cbor/v2"
)

// Snapshot is the portable form of a locked buffer's output: the sorted
// records plus the range boundaries, CBOR-encoded for a downstream merge or
// proof-construction stage running out of process. It captures the locked
// result only; an open buffer has no snapshot.
type Snapshot struct {
	BaseOffset int       `cbor:"o"`
	Anns       []AnnData `cbor:"a"`
	Bounds     []int     `cbor:"b"`
}

// Export encodes the locked buffer's sorted prefix and boundaries. Requires a
// locked buffer; the records are copied, so the encoding stays valid across a
// later Reset.
func (b *Buf) Export() ([]byte, error) {
	if atomic.LoadInt32(&b.locked) == 0 {
		return nil, wrapOp("export", ErrNotLocked)
	}
	n := b.NextAnnIndex()
	snap := Snapshot{
		BaseOffset: b.baseOffset,
		Anns:       append([]AnnData(nil), b.annData[:n]...),
		Bounds:     append([]int(nil), b.bounds...),
	}
	out, err := cbor.Marshal(&snap)
	if err != nil {
		return nil, wrapOp("export", err)
	}
	return out, nil
}

// DecodeSnapshot decodes an Export payload.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, wrapOp("decode_snapshot", err)
	}
	return &snap, nil
}
