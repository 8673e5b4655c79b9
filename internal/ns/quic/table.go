package quic

import "encoding/binary"

// entry is one bucket-chain link in a Table.
type entry struct {
	dcid []byte
	conn *Connection
	next *entry
}

// Table is the per-worker destination connection ID dispatch table (C7).
// Each UDP worker owns one unshared Table; there is no locking because a
// Table is only ever touched by the goroutine that also reads its socket,
// mirroring the batched pipeline's per-worker ownership.
//
// Connection IDs hash by folding them into a uint64 with xor across 8-byte
// chunks (RFC 9000 places no structure on connection ID bytes, so any
// uniform mixing works); the bucket count is always a power of two so the
// index is a mask instead of a modulo.
type Table struct {
	buckets []*entry
	mask    uint64
	size    int
}

// NewTable builds a Table sized to capacity entries, rounding up to the
// next power of two.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Table{buckets: make([]*entry, n), mask: uint64(n - 1)}
}

// hashDCID xor-folds dcid into a uint64: 8-byte chunks are XORed together,
// and any trailing bytes (dcid's length need not be a multiple of 8) are
// XORed into the low bytes of the fold.
func hashDCID(dcid []byte) uint64 {
	var h uint64
	i := 0
	for ; i+8 <= len(dcid); i += 8 {
		h ^= binary.BigEndian.Uint64(dcid[i : i+8])
	}
	if rem := len(dcid) - i; rem > 0 {
		var tail [8]byte
		copy(tail[8-rem:], dcid[i:])
		h ^= binary.BigEndian.Uint64(tail[:])
	}
	// Mix bits so short DCIDs (which leave most of h zero after folding)
	// still spread across the table; this is the first xorshift-multiply
	// round of MurmurHash3's 64-bit finalizer (fmix64).
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h
}

func (t *Table) index(dcid []byte) uint64 {
	return hashDCID(dcid) & t.mask
}

// Lookup returns the connection registered under dcid, or nil if none.
func (t *Table) Lookup(dcid []byte) *Connection {
	for e := t.buckets[t.index(dcid)]; e != nil; e = e.next {
		if connIDEqual(e.dcid, dcid) {
			return e.conn
		}
	}
	return nil
}

// Insert registers conn under dcid, chaining onto any existing bucket
// occupants. Does not check for a prior entry under the same dcid; callers
// must Lookup first if that matters (the demultiplexer always does, since
// it needs to decide whether to create a new Connection).
func (t *Table) Insert(dcid []byte, conn *Connection) {
	idx := t.index(dcid)
	t.buckets[idx] = &entry{dcid: append([]byte(nil), dcid...), conn: conn, next: t.buckets[idx]}
	t.size++
}

// Remove deletes the entry registered under dcid, if any.
func (t *Table) Remove(dcid []byte) {
	idx := t.index(dcid)
	var prev *entry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if connIDEqual(e.dcid, dcid) {
			if prev == nil {
				t.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			t.size--
			return
		}
		prev = e
	}
}

// Len reports the number of connections currently tracked.
func (t *Table) Len() int { return t.size }

func connIDEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
