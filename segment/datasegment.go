package segment

import (
	"context"

	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/storage"
)

// AppendAccessPattern reports whether a segment of this type is written via
// repeated small appends (true for the tail and L0 segments) as opposed to
// written once in full (Ln segments produced by compaction).
func AppendAccessPattern(typ segid.Type) bool {
	return typ == segid.Meta || typ == segid.DataL0
}

// DataSegment is a single segment's read/write surface: it owns the
// segment's cache and knows which framing and access pattern its segment
// id implies.
type DataSegment struct {
	ID       segid.ID
	Path     string
	adaptor  storage.Adaptor
	cache    *Cache
	compress bool
}

// NewDataSegment wraps a segment id/path with a fresh, empty cache.
func NewDataSegment(id segid.ID, path string, adaptor storage.Adaptor, compress bool) *DataSegment {
	return &DataSegment{ID: id, Path: path, adaptor: adaptor, cache: NewCache(), compress: compress}
}

func (d *DataSegment) isAppendSegment() bool { return AppendAccessPattern(d.ID.Type()) }

// AppendEntries appends entries to a tail/L0 segment using reverse framing,
// in a single Append call, returning the adaptor's precise outcome so the
// caller (segmgr/Store) can drive the rotate-on-full state machine.
func (d *DataSegment) AppendEntries(ctx context.Context, entries []Entry) (storage.AppendResult, error) {
	buf, err := EncodeReverse(entries)
	if err != nil {
		return storage.AppendResult{}, err
	}
	return d.adaptor.Append(ctx, d.Path, buf)
}

// WriteAllEntries writes entries as the complete, one-shot content of an Ln
// segment using forward framing, optionally LZ4-compressed, with a
// trailing checksum.
func (d *DataSegment) WriteAllEntries(ctx context.Context, entries []Entry) error {
	buf, err := EncodeForward(entries)
	if err != nil {
		return err
	}
	if d.compress {
		buf, err = compressLn(buf)
		if err != nil {
			return err
		}
	}
	return d.adaptor.WriteAll(ctx, d.Path, appendChecksum(buf))
}

func (d *DataSegment) decodeBody(raw []byte) ([]byte, error) {
	if d.isAppendSegment() {
		return raw, nil
	}
	body, err := splitChecksum(raw)
	if err != nil {
		return nil, err
	}
	if d.compress {
		return decompressLn(body)
	}
	return body, nil
}

// ReadAllEntries reads and decodes every entry in the segment, consulting
// and updating the cache as it goes.
func (d *DataSegment) ReadAllEntries(ctx context.Context) ([]Entry, error) {
	res := d.cache.GetFull()
	var body []byte
	switch res.Kind {
	case Hit:
		body = res.Data
	case HitPartial, Miss:
		raw, err := d.fetchMissing(ctx, res)
		if err != nil {
			return nil, err
		}
		body = raw
	}
	return d.decodeAndParse(body)
}

func (d *DataSegment) decodeAndParse(body []byte) ([]Entry, error) {
	decoded, err := d.decodeBody(body)
	if err != nil {
		return nil, err
	}
	if d.isAppendSegment() {
		return DecodeReverseAll(decoded)
	}
	return DecodeForward(decoded)
}

func (d *DataSegment) fetchMissing(ctx context.Context, res CacheResult) ([]byte, error) {
	var raw []byte
	var err error
	full := true
	if res.MissEnd == 0 {
		raw, err = d.adaptor.ReadAll(ctx, d.Path)
		if err == nil && res.MissStart > 0 {
			// Keep only the suffix the cache does not hold yet.
			if res.MissStart > int64(len(raw)) {
				raw = nil
			} else {
				raw = raw[res.MissStart:]
			}
		}
	} else {
		raw, err = d.adaptor.ReadRange(ctx, d.Path, res.MissStart, res.MissEnd-res.MissStart)
		full = false
	}
	if err != nil {
		return nil, err
	}
	d.cache.Update(full, res.MissStart, raw)
	full2 := d.cache.GetFull()
	if full2.Kind == Hit {
		return full2.Data, nil
	}
	return d.cache.Slice(0, d.cache.CachedEnd()), nil
}

// SearchEntry looks for key across the whole segment.
func (d *DataSegment) SearchEntry(ctx context.Context, key []byte) (Entry, bool, error) {
	entries, err := d.ReadAllEntries(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if bytesEqual(e.Key, key) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// SearchEntryInRange searches only the byte range [0, length) of an append
// segment, used to confine a tail search to the portion of the tail a
// snapshot observed.
func (d *DataSegment) SearchEntryInRange(ctx context.Context, key []byte, length int64) (Entry, bool, error) {
	res := d.cache.Get(0, length)
	var body []byte
	switch res.Kind {
	case Hit:
		body = res.Data
	default:
		raw, err := d.fetchMissing(ctx, res)
		if err != nil {
			return Entry{}, false, err
		}
		body = raw
		if int64(len(body)) > length {
			body = body[:length]
		}
	}
	return SearchReverse(body, key)
}
