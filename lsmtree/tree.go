package lsmtree

import (
	"fmt"
	"sort"

	"github.com/airkv-project/airkv/segid"
)

// LevelSegDesc is the set of segments currently belonging to one level.
type LevelSegDesc struct {
	Segs []SegDesc
}

func (l *LevelSegDesc) appendSegs(add []SegDesc) {
	l.Segs = append(l.Segs, add...)
	sort.Slice(l.Segs, func(i, j int) bool { return Less(l.Segs[i], l.Segs[j]) })
}

func (l *LevelSegDesc) removeSegs(remove []SegDesc) {
	dead := make(map[segid.ID]struct{}, len(remove))
	for _, r := range remove {
		dead[r.ResourceID()] = struct{}{}
	}
	kept := l.Segs[:0:0]
	for _, s := range l.Segs {
		if _, gone := dead[s.ResourceID()]; !gone {
			kept = append(kept, s)
		}
	}
	l.Segs = kept
}

// Descriptor is the full LSM tree shape: the current tail plus the
// per-level segment membership built up purely by replaying TreeDeltas in
// meta-segment order.
type Descriptor struct {
	Tail   SegDesc
	Levels []LevelSegDesc
}

// NewDescriptor returns an empty tree descriptor with no tail installed.
func NewDescriptor() *Descriptor { return &Descriptor{} }

// HasTail reports whether a tail has ever been installed.
func (d *Descriptor) HasTail() bool { return !segidIsUninit(d.Tail.ID) }

// LevelCount reports how many levels currently exist.
func (d *Descriptor) LevelCount() int { return len(d.Levels) }

// AppendTreeDelta applies one TreeDelta's level mutations in order.
func (d *Descriptor) AppendTreeDelta(td TreeDelta) error {
	for _, ld := range td.Levels {
		if err := d.appendLevelDelta(ld); err != nil {
			return err
		}
	}
	return nil
}

func (d *Descriptor) appendLevelDelta(ld LevelDelta) error {
	if ld.IsTailUpdate() {
		d.Tail = ld.Segs[0]
		return nil
	}
	level := int(ld.Level)
	if level > len(d.Levels) {
		return errLevelGap(level, len(d.Levels))
	}
	if level == len(d.Levels) {
		if !ld.IsAdd {
			return errLevelGap(level, len(d.Levels))
		}
		d.Levels = append(d.Levels, LevelSegDesc{})
	}
	lvl := &d.Levels[level]
	if ld.IsAdd {
		lvl.appendSegs(ld.Segs)
	} else {
		lvl.removeSegs(ld.Segs)
	}
	return nil
}

// ReadSequence returns every segment descriptor across every level, ordered
// newest-ordinal-first, the search order a point lookup walks once the
// tail has been checked and missed.
func (d *Descriptor) ReadSequence() []SegDesc {
	var all []SegDesc
	for _, lvl := range d.Levels {
		all = append(all, lvl.Segs...)
	}
	sort.Slice(all, func(i, j int) bool {
		oi, oj := all[i].ID.Ordinal(), all[j].ID.Ordinal()
		if oi != oj {
			return oi > oj
		}
		return all[i].ID > all[j].ID
	})
	return all
}

func segidIsUninit(id segid.ID) bool { return segid.IsUninitTail(id) }

func errLevelGap(level, have int) error {
	return fmt.Errorf("lsmtree: level %d delta has no predecessor (have %d levels)", level, have)
}

// Clone returns a deep copy, used to hand out an immutable snapshot to a
// reader while the live descriptor continues to mutate underneath.
func (d *Descriptor) Clone() *Descriptor {
	out := &Descriptor{Tail: d.Tail}
	out.Levels = make([]LevelSegDesc, len(d.Levels))
	for i, lvl := range d.Levels {
		segs := make([]SegDesc, len(lvl.Segs))
		copy(segs, lvl.Segs)
		out.Levels[i] = LevelSegDesc{Segs: segs}
	}
	return out
}
