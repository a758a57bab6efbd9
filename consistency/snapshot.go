package consistency

import (
	"context"

	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segment"
)

// Snapshot is a reader's fixed view of the store at a point in time: how
// much of the tail it is allowed to see, and the tree shape as of then. A
// lookup against a Snapshot always returns the same answer no matter how
// much the live store mutates afterward, because every level segment is
// immutable and the tail is only ever consulted up to TailLength.
type Snapshot struct {
	TailLength int64
	Tree       *lsmtree.Descriptor
}

// SegmentOpener resolves a segment descriptor to a readable DataSegment,
// used to look up level segments lazily during Get.
type SegmentOpener func(desc lsmtree.SegDesc) (*segment.DataSegment, error)

// Get looks up key, first against the bounded prefix of the tail this
// snapshot observed, then against level segments newest-ordinal-first.
func (s Snapshot) Get(ctx context.Context, tail *segment.DataSegment, open SegmentOpener, key []byte) (segment.Entry, bool, error) {
	if s.TailLength != 0 {
		e, ok, err := tail.SearchEntryInRange(ctx, key, s.TailLength)
		if err != nil {
			return segment.Entry{}, false, err
		}
		if ok {
			return e, true, nil
		}
	}
	for _, desc := range s.Tree.ReadSequence() {
		seg, err := open(desc)
		if err != nil {
			return segment.Entry{}, false, err
		}
		e, ok, err := seg.SearchEntry(ctx, key)
		if err != nil {
			return segment.Entry{}, false, err
		}
		if ok {
			return e, true, nil
		}
	}
	return segment.Entry{}, false, nil
}
