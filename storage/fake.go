package storage

import (
	"context"
	"sync"
)

// blockSize is the nominal append-blob block size the fake adaptor uses to
// derive a committed-block count from raw byte length, matching the unit
// the original append-blob-backed store reasons about.
const blockSize = 4096

// MaxBlockCount caps the number of committed blocks a single fake segment
// may accumulate, modeling an append-blob service's hard per-blob block
// count ceiling.
var MaxBlockCount uint16 = 50000

// MaxSegmentLength caps the total byte length of a single fake segment.
var MaxSegmentLength int64 = 1 << 32

type fakeSegment struct {
	data   []byte
	sealed bool
}

// FakeAdaptor is a pure in-memory Adaptor, used by tests and by any
// in-process embedding that does not need real persistence. It arbitrates
// all state behind a single mutex, the same global-state append-store
// design spec.md's testing notes call for.
type FakeAdaptor struct {
	mu       sync.Mutex
	segments map[string]*fakeSegment
}

// NewFakeAdaptor constructs a ready-to-use fake adaptor. Open is a no-op for
// this backend but is still called by consumers that code against Adaptor
// generically.
func NewFakeAdaptor() *FakeAdaptor {
	return &FakeAdaptor{segments: make(map[string]*fakeSegment)}
}

func (f *FakeAdaptor) Open(ctx context.Context, home string, props map[string]string) error {
	return nil
}

func (f *FakeAdaptor) Close(ctx context.Context) error { return nil }

func (f *FakeAdaptor) Create(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.segments[path]; ok {
		return nil
	}
	f.segments[path] = &fakeSegment{}
	return nil
}

func (f *FakeAdaptor) Append(ctx context.Context, path string, buf []byte) (AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[path]
	if !ok {
		return AppendResult{Outcome: AppendSegmentNotExist}, nil
	}
	if seg.sealed {
		return AppendResult{Outcome: AppendToSealed}, nil
	}
	if int64(len(seg.data)+len(buf)) > MaxSegmentLength {
		return AppendResult{Outcome: AppendSegmentLengthExceeded}, nil
	}
	newBlocks := uint16((len(seg.data) + len(buf) + blockSize - 1) / blockSize)
	if newBlocks > MaxBlockCount {
		return AppendResult{Outcome: AppendBlockCountExceeded}, nil
	}
	seg.data = append(seg.data, buf...)
	return AppendResult{Outcome: AppendSuccess, CommittedBlocks: newBlocks}, nil
}

func (f *FakeAdaptor) Seal(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[path]
	if !ok {
		return ErrSegmentNotExist
	}
	if seg.sealed {
		return ErrAlreadySealed
	}
	seg.sealed = true
	return nil
}

func (f *FakeAdaptor) WriteAll(ctx context.Context, path string, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.segments[path] = &fakeSegment{data: cp, sealed: true}
	return nil
}

func (f *FakeAdaptor) ReadAll(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[path]
	if !ok {
		return nil, ErrSegmentNotExist
	}
	out := make([]byte, len(seg.data))
	copy(out, seg.data)
	return out, nil
}

func (f *FakeAdaptor) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[path]
	if !ok {
		return nil, ErrSegmentNotExist
	}
	end := offset + length
	if end > int64(len(seg.data)) {
		end = int64(len(seg.data))
	}
	if offset > end {
		offset = end
	}
	out := make([]byte, end-offset)
	copy(out, seg.data[offset:end])
	return out, nil
}

func (f *FakeAdaptor) GetProps(ctx context.Context, path string) (Props, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[path]
	if !ok {
		return Props{}, ErrSegmentNotExist
	}
	return Props{
		Length:          int64(len(seg.data)),
		CommittedBlocks: uint16((len(seg.data) + blockSize - 1) / blockSize),
		Sealed:          seg.sealed,
	}, nil
}

func (f *FakeAdaptor) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.segments, path)
	return nil
}
