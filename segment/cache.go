package segment

// HitKind classifies the result of a cache lookup.
type HitKind int

const (
	Hit HitKind = iota
	HitPartial
	Miss
)

// CacheResult is the outcome of a Cache.Get or Cache.GetFull call. Data is
// populated only when Kind == Hit. MissStart/MissEnd describe the byte
// range that must be fetched from the backing adaptor to complete the
// request; for GetFull a MissEnd of 0 means "read through to end of
// segment" since the cache does not know the segment's total length.
type CacheResult struct {
	Kind              HitKind
	Data              []byte
	MissStart, MissEnd int64
}

// Cache is a single-range prefix cache over a segment's bytes: it only ever
// caches [0, end) for some end, and only ever grows by contiguous append,
// matching the original's "shared cache data" design. This means a
// previously returned byte slice remains valid for the caller even after
// the cache grows, because growth never relocates already-cached bytes —
// Go's append-based implementation below preserves that by always copying
// out on read rather than returning a view into the live backing slice.
type Cache struct {
	full bool
	end  int64
	data []byte
}

// NewCache returns an empty cache.
func NewCache() *Cache { return &Cache{} }

func (c *Cache) IsFull() bool  { return c.full }
func (c *Cache) IsEmpty() bool { return c.end == 0 && !c.full }
func (c *Cache) CachedEnd() int64 { return c.end }

// GetFull reports what, if anything, still needs to be read to satisfy a
// "read whole segment" request.
func (c *Cache) GetFull() CacheResult {
	if c.full {
		return CacheResult{Kind: Hit, Data: cloneBytes(c.data)}
	}
	if c.IsEmpty() {
		return CacheResult{Kind: Miss, MissStart: 0, MissEnd: 0}
	}
	return CacheResult{Kind: HitPartial, MissStart: c.end, MissEnd: 0}
}

// Get reports what, if anything, still needs to be read to satisfy a
// request for [start, end). Because the cache only ever holds a prefix
// [0, end), any fetch it asks for must itself start at the cache's current
// end, not at the caller's start — even when start > 0 the gap beneath it
// has to be pulled in too to keep the cached region contiguous from zero.
func (c *Cache) Get(start, end int64) CacheResult {
	if end <= c.end {
		return CacheResult{Kind: Hit, Data: cloneBytes(c.data[start:end])}
	}
	if c.end == 0 {
		return CacheResult{Kind: Miss, MissStart: 0, MissEnd: end}
	}
	return CacheResult{Kind: HitPartial, MissStart: c.end, MissEnd: end}
}

// Update appends newly fetched bytes onto the cache. newStart must equal
// the cache's current end (contiguous growth is the only mode supported,
// matching the original's assertion in DataRange::append).
func (c *Cache) Update(full bool, newStart int64, newData []byte) {
	if newStart != c.end {
		panic("segment: cache update is not contiguous with cached prefix")
	}
	c.data = append(c.data, newData...)
	c.end += int64(len(newData))
	c.full = full
}

// Slice returns a defensive copy of the cached bytes in [start, end). The
// caller must only call this after confirming the range is covered
// (typically immediately after a Hit result).
func (c *Cache) Slice(start, end int64) []byte {
	return cloneBytes(c.data[start:end])
}
