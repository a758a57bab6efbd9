// Package lsmtree implements the LSM tree's level descriptors and the
// delta-based update protocol that lets many writers converge on the same
// tree shape purely from the order of records on the meta segment.
package lsmtree

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/airkv-project/airkv/segid"
)

// SegDesc describes one segment's membership in a level, plus optional
// min/max key statistics used to prune scans.
type SegDesc struct {
	ID       segid.ID
	Min, Max []byte
}

// HasStats reports whether this descriptor carries min/max key bounds.
func (d SegDesc) HasStats() bool { return d.Min != nil || d.Max != nil }

// ResourceID is the identity used for level membership and lock bookkeeping:
// it strips any optimistic-writer suffix so add/remove deltas referring to
// the same logical segment compare equal regardless of which candidate
// writer produced it.
func (d SegDesc) ResourceID() segid.ID { return d.ID.ResourceID() }

// Less orders descriptors by min key when both have stats, falling back to
// segment id, matching the ordering level membership is kept in.
func Less(a, b SegDesc) bool {
	if a.Min != nil && b.Min != nil {
		if c := bytes.Compare(a.Min, b.Min); c != 0 {
			return c < 0
		}
	}
	return a.ID < b.ID
}

func encodeSegDesc(buf *bytes.Buffer, d SegDesc) {
	if d.ID.IsOptimistic() {
		buf.WriteByte(1)
		writeU64(buf, uint64(d.ID))
	} else {
		buf.WriteByte(0)
		writeU32(buf, uint32(d.ID>>32))
	}
	if d.HasStats() {
		buf.WriteByte(1)
		writeU16(buf, uint16(len(d.Min)))
		buf.Write(d.Min)
		writeU16(buf, uint16(len(d.Max)))
		buf.Write(d.Max)
	} else {
		buf.WriteByte(0)
	}
}

func decodeSegDesc(r *bytes.Reader) (SegDesc, error) {
	isOptimistic, err := r.ReadByte()
	if err != nil {
		return SegDesc{}, err
	}
	var id segid.ID
	if isOptimistic == 1 {
		v, err := readU64(r)
		if err != nil {
			return SegDesc{}, err
		}
		id = segid.ID(v)
	} else {
		v, err := readU32(r)
		if err != nil {
			return SegDesc{}, err
		}
		id = segid.ID(v) << 32
	}
	hasStats, err := r.ReadByte()
	if err != nil {
		return SegDesc{}, err
	}
	d := SegDesc{ID: id}
	if hasStats == 1 {
		minLen, err := readU16(r)
		if err != nil {
			return SegDesc{}, err
		}
		d.Min = make([]byte, minLen)
		if _, err := r.Read(d.Min); err != nil {
			return SegDesc{}, err
		}
		maxLen, err := readU16(r)
		if err != nil {
			return SegDesc{}, err
		}
		d.Max = make([]byte, maxLen)
		if _, err := r.Read(d.Max); err != nil {
			return SegDesc{}, err
		}
	}
	return d, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("lsmtree: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("lsmtree: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("lsmtree: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
