// Package compaction implements the level-fill-driven compaction planner
// and the merge executor that actually rewrites selected segments one
// level down.
package compaction

import (
	"math/rand"

	"github.com/airkv-project/airkv/lsmtree"
)

// Config holds the per-level thresholds and fanouts the planner uses to
// decide when a level needs compacting and how many segments to fold
// together at once. A fanout of 0 does not turn compaction off for a
// level: segments are then bucketed one ordinal per bucket and every
// bucket counts as full.
type Config struct {
	Thresholds []uint32
	Fanouts    []uint32
}

// DefaultConfig returns the three-level configuration the original
// scheduler shipped with, generalized here to apply to however many levels
// a tree actually grows (any level beyond the configured slice reuses the
// last configured threshold/fanout pair rather than refusing to compact
// it, which is the generalization beyond "only the top two layers" that
// the single-process original enforced).
func DefaultConfig() Config {
	return Config{
		Thresholds: []uint32{200, 40, 80},
		Fanouts:    []uint32{50, 5, 10},
	}
}

func (c Config) thresholdFor(level int) uint32 {
	return c.pick(c.Thresholds, level)
}

func (c Config) fanoutFor(level int) uint32 {
	return c.pick(c.Fanouts, level)
}

func (c Config) pick(vals []uint32, level int) uint32 {
	if len(vals) == 0 {
		return 1
	}
	if level < len(vals) {
		return vals[level]
	}
	return vals[len(vals)-1]
}

// fillScore is the ratio of a level's current segment count to its
// configured threshold; a level becomes a compaction candidate once this
// exceeds 0.75.
func fillScore(segCount int, threshold uint32) float64 {
	if threshold == 0 {
		return 0
	}
	return float64(segCount) / float64(threshold)
}

const candidateScoreThreshold = 0.75

// FindCandidateLevel returns the level with the highest fill score above
// the candidate threshold, or ok=false if no level qualifies.
func FindCandidateLevel(tree *lsmtree.Descriptor, cfg Config) (level int, ok bool) {
	bestScore := candidateScoreThreshold
	found := false
	for lvl, desc := range tree.Levels {
		score := fillScore(len(desc.Segs), cfg.thresholdFor(lvl))
		if score > bestScore {
			bestScore = score
			level = lvl
			found = true
		}
	}
	return level, found
}

// Task describes one compaction to execute: fold srcSegs (all belonging to
// fromLevel) into a single new segment one level down.
type Task struct {
	FromLevel int
	DestLevel int
	SrcSegs   []lsmtree.SegDesc
}

// PlanCompaction picks a level to compact and a set of its segments to fold
// together, preferring a full fanout-sized bucket and falling back to L0
// when no level-1-or-deeper bucket is currently full.
func PlanCompaction(tree *lsmtree.Descriptor, cfg Config, rng *rand.Rand) (Task, bool) {
	level, ok := FindCandidateLevel(tree, cfg)
	if !ok {
		return Task{}, false
	}
	if level == 0 {
		return planLevelZero(tree, cfg, rng)
	}
	task, ok := planLevelN(tree, cfg, level, rng)
	if !ok {
		return planLevelZero(tree, cfg, rng)
	}
	return task, true
}

func bucketsByFanout(segs []lsmtree.SegDesc, fanout uint32) map[uint32][]lsmtree.SegDesc {
	buckets := map[uint32][]lsmtree.SegDesc{}
	for _, s := range segs {
		bucket := s.ID.Ordinal() / uint32max(fanout, 1)
		buckets[bucket] = append(buckets[bucket], s)
	}
	return buckets
}

func uint32max(v, floor uint32) uint32 {
	if v == 0 {
		return floor
	}
	return v
}

func planLevelZero(tree *lsmtree.Descriptor, cfg Config, rng *rand.Rand) (Task, bool) {
	if len(tree.Levels) == 0 {
		return Task{}, false
	}
	fanout := cfg.fanoutFor(0)
	buckets := bucketsByFanout(tree.Levels[0].Segs, fanout)
	full := fullBuckets(buckets, fanout)
	if len(full) == 0 {
		return Task{}, false
	}
	chosen := full[rng.Intn(len(full))]
	return Task{FromLevel: 0, DestLevel: 1, SrcSegs: chosen}, true
}

func planLevelN(tree *lsmtree.Descriptor, cfg Config, level int, rng *rand.Rand) (Task, bool) {
	if level >= len(tree.Levels) {
		return Task{}, false
	}
	fanout := cfg.fanoutFor(level)
	buckets := bucketsByFanout(tree.Levels[level].Segs, fanout)
	full := fullBuckets(buckets, fanout)
	if len(full) == 0 {
		return Task{}, false
	}
	chosen := full[rng.Intn(len(full))]
	return Task{FromLevel: level, DestLevel: level + 1, SrcSegs: chosen}, true
}

func fullBuckets(buckets map[uint32][]lsmtree.SegDesc, fanout uint32) [][]lsmtree.SegDesc {
	var full [][]lsmtree.SegDesc
	for _, segs := range buckets {
		if uint32(len(segs)) >= fanout {
			full = append(full, segs)
		}
	}
	return full
}
