package gobasin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// CycleID is the canonical structural identity of a cycle: its member
// page ids sorted ascending.  Cycles discovered under different rules
// (or in different rotations) compare equal iff their member sets are
// equal, which makes CycleID the join key across all derived tables.
type CycleID struct {
	members []PageID // ascending, deduped
}

// CycleKey is a CycleID interned as a 64-bit hash of its LSM encoding.
// It is the compact join key used in assignment rows.
type CycleKey uint64

// NewCycleID canonicalizes the given members.  The input is copied.
func NewCycleID(members []PageID) CycleID {
	sorted := make([]PageID, len(members))
	copy(sorted, members)
	sortPageIDs(sorted)

	// Dedupe in place; rotations closing on the start node can repeat it.
	n := 0
	for i, id := range sorted {
		if i == 0 || id != sorted[n-1] {
			sorted[n] = id
			n++
		}
	}
	return CycleID{members: sorted[:n]}
}

// Members returns the sorted member ids.  Read-only.
func (c CycleID) Members() []PageID { return c.members }

func (c CycleID) Len() int { return len(c.members) }

func (c CycleID) IsNil() bool { return len(c.members) == 0 }

// Contains reports membership via binary search.
func (c CycleID) Contains(id PageID) bool {
	lo, hi := 0, len(c.members)
	for lo < hi {
		mid := (lo + hi) >> 1
		if c.members[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(c.members) && c.members[lo] == id
}

// AppendLSM appends a canonical binary encoding of this CycleID:
// a uvarint member count followed by uvarint-encoded deltas between
// successive sorted ids.
func (c CycleID) AppendLSM(out []byte) []byte {
	var scrap [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(scrap[:], uint64(len(c.members)))
	out = append(out, scrap[:n]...)

	prev := PageID(0)
	for _, id := range c.members {
		n = binary.PutUvarint(scrap[:], uint64(id-prev))
		out = append(out, scrap[:n]...)
		prev = id
	}
	return out
}

// InitFromLSM assigns this CycleID from an encoding made by AppendLSM.
func (c *CycleID) InitFromLSM(enc []byte) error {
	rdr := bytes.NewReader(enc)

	count, err := binary.ReadUvarint(rdr)
	if err != nil {
		return ErrUnmarshal
	}

	members := make([]PageID, 0, count)
	prev := PageID(0)
	for i := uint64(0); i < count; i++ {
		delta, err := binary.ReadUvarint(rdr)
		if err != nil {
			if err == io.EOF {
				return ErrUnmarshal
			}
			return err
		}
		prev += PageID(delta)
		members = append(members, prev)
	}

	c.members = members
	return nil
}

// Key interns this CycleID as a stable 64-bit hash of its LSM encoding.
func (c CycleID) Key() CycleKey {
	var buf [160]byte
	return CycleKey(xxhash.Sum64(c.AppendLSM(buf[:0])))
}

// Equal reports whether two CycleIDs have identical member sets.
func (c CycleID) Equal(other CycleID) bool {
	if len(c.members) != len(other.members) {
		return false
	}
	for i, id := range c.members {
		if other.members[i] != id {
			return false
		}
	}
	return true
}

func (c CycleID) String() string {
	return fmt.Sprintf("cycle[%d]:%016x", len(c.members), uint64(c.Key()))
}

func (k CycleKey) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}
