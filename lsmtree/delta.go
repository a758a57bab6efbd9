package lsmtree

import (
	"bytes"

	"github.com/airkv-project/airkv/segid"
)

// TailLevel is the sentinel level id that marks a LevelDelta as a tail
// update rather than an ordinary level mutation.
const TailLevel uint8 = 255

// LevelDelta describes one mutation to a single level (or, via TailLevel,
// to the tail pointer): either a batch of segments being added or a batch
// being removed.
type LevelDelta struct {
	Level     uint8
	IsAdd     bool
	Segs      []SegDesc
}

// IsTailUpdate reports whether this delta installs a new tail rather than
// mutating an ordinary level.
func (d LevelDelta) IsTailUpdate() bool { return d.Level == TailLevel }

// NewTailDelta builds the delta that installs seg as the new tail.
func NewTailDelta(seg SegDesc) LevelDelta {
	return LevelDelta{Level: TailLevel, IsAdd: true, Segs: []SegDesc{seg}}
}

// TreeDelta is an ordered batch of level mutations, the unit of update
// recorded on the meta segment.
type TreeDelta struct {
	Levels []LevelDelta
}

// UpdateTailDelta builds the two-part delta a tail rotation produces: the
// new tail is installed, and the old tail (if any) is simultaneously
// demoted into level 0 as an ordinary segment.
func UpdateTailDelta(oldTail, newTail segid.ID) TreeDelta {
	newDesc := SegDesc{ID: newTail}
	if !segid.HasPrevTail(oldTail) {
		return TreeDelta{Levels: []LevelDelta{NewTailDelta(newDesc)}}
	}
	return TreeDelta{Levels: []LevelDelta{
		NewTailDelta(newDesc),
		{Level: 0, IsAdd: true, Segs: []SegDesc{{ID: oldTail}}},
	}}
}

// NewFromCompaction builds the delta produced by replacing srcSegs at
// fromLevel with a single destSeg one level down.
func NewFromCompaction(fromLevel uint8, srcSegs []SegDesc, destLevel uint8, destSeg SegDesc) TreeDelta {
	return TreeDelta{Levels: []LevelDelta{
		{Level: fromLevel, IsAdd: false, Segs: srcSegs},
		{Level: destLevel, IsAdd: true, Segs: []SegDesc{destSeg}},
	}}
}

// Encode serializes a TreeDelta per the on-blob MetaRecord TreeDelta
// framing: u8 level_count, then each LevelDelta as
// u8 level, u8 op, u16 seg_count, SegDesc[].
func (td TreeDelta) Encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(len(td.Levels)))
	for _, ld := range td.Levels {
		buf.WriteByte(ld.Level)
		if ld.IsAdd {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeU16(buf, uint16(len(ld.Segs)))
		for _, sd := range ld.Segs {
			encodeSegDesc(buf, sd)
		}
	}
}

// DecodeTreeDelta parses a TreeDelta from r.
func DecodeTreeDelta(r *bytes.Reader) (TreeDelta, error) {
	levelCount, err := r.ReadByte()
	if err != nil {
		return TreeDelta{}, err
	}
	td := TreeDelta{}
	for i := 0; i < int(levelCount); i++ {
		level, err := r.ReadByte()
		if err != nil {
			return TreeDelta{}, err
		}
		op, err := r.ReadByte()
		if err != nil {
			return TreeDelta{}, err
		}
		segCount, err := readU16(r)
		if err != nil {
			return TreeDelta{}, err
		}
		segs := make([]SegDesc, 0, segCount)
		for j := 0; j < int(segCount); j++ {
			sd, err := decodeSegDesc(r)
			if err != nil {
				return TreeDelta{}, err
			}
			segs = append(segs, sd)
		}
		td.Levels = append(td.Levels, LevelDelta{Level: level, IsAdd: op == 1, Segs: segs})
	}
	return td, nil
}
