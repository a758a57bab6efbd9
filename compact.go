package airkv

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/airkv-project/airkv/compaction"
	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/segment"
)

// RunCompaction looks for a level whose fill score is over the candidate
// threshold and, if one exists, folds one fanout-sized bucket of its
// segments into a new segment one level down. It returns false if no level
// currently needs compacting, or if this attempt lost the optimistic
// first-committer-wins race to another client compacting the same
// segments concurrently.
func (s *Store) RunCompaction(ctx context.Context) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	ctx, span := s.tracer.Start(ctx, "Store.RunCompaction")
	defer span.End()

	tree, err := s.mgr.Meta().RefreshedTreeDescriptor(ctx)
	if err != nil {
		return false, err
	}
	task, ok := compaction.PlanCompaction(tree, s.opts.CompactionConfig, rand.New(rand.NewSource(nowMs())))
	if !ok {
		return false, nil
	}

	runs, ordinals, err := s.readSources(ctx, task)
	if err != nil {
		return false, err
	}

	var merged []segment.Entry
	if task.FromLevel == 0 {
		merged = compaction.ExecuteL0(ctx, runs, ordinals)
	} else {
		merged = compaction.ExecuteLn(ctx, runs, ordinals)
	}

	destOrdinal := task.SrcSegs[0].ID.Ordinal()
	dest := segid.New(segid.DataLn, uint8(task.DestLevel), destOrdinal, s.clientID)
	destSeg := s.mgr.DataSegment(dest)
	if err := destSeg.WriteAllEntries(ctx, merged); err != nil {
		return false, err
	}

	resources := make([]segid.ID, len(task.SrcSegs))
	for i, sd := range task.SrcSegs {
		resources[i] = sd.ID
	}
	destDesc := lsmtree.SegDesc{ID: dest, Min: minKey(merged), Max: maxKey(merged)}
	delta := lsmtree.NewFromCompaction(uint8(task.FromLevel), task.SrcSegs, uint8(task.DestLevel), destDesc)

	won, err := s.mgr.Meta().AppendOptimisticCommit(ctx, s.clientID, resources, delta)
	if err != nil {
		return false, err
	}
	if !won {
		s.metrics.optimisticResults.WithLabelValues("lost").Inc()
		return false, nil
	}
	s.metrics.optimisticResults.WithLabelValues("won").Inc()
	s.metrics.compactionRuns.Inc()
	s.metrics.lastCompactionSegs.Set(float64(len(task.SrcSegs)))
	return true, nil
}

func (s *Store) readSources(ctx context.Context, task compaction.Task) ([][]segment.Entry, []uint64, error) {
	runs := make([][]segment.Entry, len(task.SrcSegs))
	ordinals := make([]uint64, len(task.SrcSegs))
	for i, sd := range task.SrcSegs {
		seg := s.mgr.DataSegment(sd.ID)
		entries, err := seg.ReadAllEntries(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("airkv: reading compaction source %v: %w", sd.ID, err)
		}
		runs[i] = entries
		ordinals[i] = uint64(sd.ID)
	}
	return runs, ordinals, nil
}

func minKey(entries []segment.Entry) []byte {
	if len(entries) == 0 {
		return nil
	}
	return entries[0].Key
}

func maxKey(entries []segment.Entry) []byte {
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1].Key
}
