package compaction

import (
	"container/heap"
	"context"
	"sort"

	"github.com/airkv-project/airkv/segment"
)

// sourceRun is one source segment's entries, already deduplicated within
// itself (newest write per key kept) and sorted by key, ready to take part
// in a k-way merge.
type sourceRun struct {
	ordinal uint64 // higher = newer, used to break cross-source key ties
	entries []segment.Entry
	pos     int
}

func (r *sourceRun) empty() bool { return r.pos >= len(r.entries) }
func (r *sourceRun) peek() segment.Entry { return r.entries[r.pos] }

type mergeHeap []*sourceRun

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	ki, kj := h[i].peek().Key, h[j].peek().Key
	c := compareBytes(ki, kj)
	if c != 0 {
		return c < 0
	}
	return h[i].ordinal > h[j].ordinal
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*sourceRun)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// dedupSortReverseFramed decodes a reverse-framed (tail/L0) segment's raw
// entries (already newest-first from DecodeReverseAll), keeps only the
// first (newest) occurrence of each key, and returns them sorted by key —
// the first stage of the two-stage L0 merge.
func dedupSortReverseFramed(newestFirst []segment.Entry) []segment.Entry {
	seen := make(map[string]struct{}, len(newestFirst))
	var out []segment.Entry
	for _, e := range newestFirst {
		k := string(e.Key)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return compareBytes(out[i].Key, out[j].Key) < 0 })
	return out
}

// mergeRuns performs the k-way min-heap merge across already sorted,
// internally-deduplicated runs, keeping the entry from the run with the
// highest ordinal whenever two runs agree on a key.
func mergeRuns(runs []*sourceRun) []segment.Entry {
	h := make(mergeHeap, 0, len(runs))
	for _, r := range runs {
		if !r.empty() {
			h = append(h, r)
		}
	}
	heap.Init(&h)

	var out []segment.Entry
	var lastKey []byte
	haveLast := false
	for h.Len() > 0 {
		r := h[0]
		e := r.peek()
		if !haveLast || compareBytes(e.Key, lastKey) != 0 {
			out = append(out, e)
			lastKey = e.Key
			haveLast = true
		}
		r.pos++
		if r.empty() {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

// ExecuteL0 merges a set of reverse-framed L0 (or tail-derived) segments
// into one sorted, forward-framed run, deduplicating so only the newest
// write for each key survives. srcOrdinals gives the segment ordinal each
// entry slice in src came from, in the same order, used to break ties
// across segments.
func ExecuteL0(ctx context.Context, src [][]segment.Entry, srcOrdinals []uint64) []segment.Entry {
	runs := make([]*sourceRun, len(src))
	for i, entries := range src {
		runs[i] = &sourceRun{ordinal: srcOrdinals[i], entries: dedupSortReverseFramed(entries)}
	}
	return mergeRuns(runs)
}

// ExecuteLn merges a set of already sorted, forward-framed Ln segments into
// one sorted run one level down.
func ExecuteLn(ctx context.Context, src [][]segment.Entry, srcOrdinals []uint64) []segment.Entry {
	runs := make([]*sourceRun, len(src))
	for i, entries := range src {
		sorted := make([]segment.Entry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(a, b int) bool { return compareBytes(sorted[a].Key, sorted[b].Key) < 0 })
		runs[i] = &sourceRun{ordinal: srcOrdinals[i], entries: sorted}
	}
	return mergeRuns(runs)
}
