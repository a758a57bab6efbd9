package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tysonmote/gommap"
	bolt "go.etcd.io/bbolt"
)

var metaBucket = []byte("segment-meta")

// localMeta is the per-segment bookkeeping a real append blob service
// tracks natively but a plain filesystem does not: whether a segment has
// been sealed, and how many blocks have been committed to it. Persisted in
// a bbolt database alongside the segment files so a process restart
// recovers seal state exactly as the teacher's metaDB recovers log state.
type localMeta struct {
	Sealed          bool
	CommittedBlocks uint16
}

// LocalAdaptor implements Adaptor directly against the local filesystem,
// for single-host development and for tests that want real file I/O
// without a cloud dependency.
type LocalAdaptor struct {
	mu   sync.Mutex
	root string
	db   *bolt.DB
}

// NewLocalAdaptor constructs an unopened local adaptor.
func NewLocalAdaptor() *LocalAdaptor { return &LocalAdaptor{} }

func (l *LocalAdaptor) Open(ctx context.Context, home string, props map[string]string) error {
	if home == "" {
		return fmt.Errorf("%w: empty home directory", ErrConfiguration)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	db, err := bolt.Open(filepath.Join(home, ".airkv-meta.bolt"), 0o644, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	}); err != nil {
		return err
	}
	l.root = home
	l.db = db
	return nil
}

func (l *LocalAdaptor) Close(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *LocalAdaptor) fullPath(path string) string { return filepath.Join(l.root, path) }

func (l *LocalAdaptor) getMeta(path string) (localMeta, bool) {
	var m localMeta
	found := false
	_ = l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		v := b.Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		// fixed 3-byte encoding: sealed flag, committed blocks (u16 LE)
		m.Sealed = v[0] != 0
		m.CommittedBlocks = uint16(v[1]) | uint16(v[2])<<8
		return nil
	})
	return m, found
}

func (l *LocalAdaptor) putMeta(path string, m localMeta) error {
	v := make([]byte, 3)
	if m.Sealed {
		v[0] = 1
	}
	v[1] = byte(m.CommittedBlocks)
	v[2] = byte(m.CommittedBlocks >> 8)
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte(path), v)
	})
}

func (l *LocalAdaptor) Create(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	full := l.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	f.Close()
	return l.putMeta(path, localMeta{})
}

func (l *LocalAdaptor) Append(ctx context.Context, path string, buf []byte) (AppendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.getMeta(path)
	if !ok {
		return AppendResult{Outcome: AppendSegmentNotExist}, nil
	}
	if m.Sealed {
		return AppendResult{Outcome: AppendToSealed}, nil
	}
	f, err := os.OpenFile(l.fullPath(path), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return AppendResult{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return AppendResult{}, err
	}
	if info.Size()+int64(len(buf)) > MaxSegmentLength {
		return AppendResult{Outcome: AppendSegmentLengthExceeded}, nil
	}
	newBlocks := uint16((info.Size() + int64(len(buf)) + blockSize - 1) / blockSize)
	if newBlocks > MaxBlockCount {
		return AppendResult{Outcome: AppendBlockCountExceeded}, nil
	}
	if _, err := f.Write(buf); err != nil {
		return AppendResult{}, err
	}
	m.CommittedBlocks = newBlocks
	if err := l.putMeta(path, m); err != nil {
		return AppendResult{}, err
	}
	return AppendResult{Outcome: AppendSuccess, CommittedBlocks: newBlocks}, nil
}

func (l *LocalAdaptor) Seal(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.getMeta(path)
	if !ok {
		return ErrSegmentNotExist
	}
	if m.Sealed {
		return ErrAlreadySealed
	}
	m.Sealed = true
	return l.putMeta(path, m)
}

func (l *LocalAdaptor) WriteAll(ctx context.Context, path string, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	full := l.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(full, buf, 0o644); err != nil {
		return err
	}
	return l.putMeta(path, localMeta{Sealed: true, CommittedBlocks: uint16((len(buf) + blockSize - 1) / blockSize)})
}

func (l *LocalAdaptor) ReadAll(ctx context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(l.fullPath(path))
	if os.IsNotExist(err) {
		return nil, ErrSegmentNotExist
	}
	return b, err
}

// ReadRange serves the requested byte range via a read-only memory mapping
// of the file rather than a ReadAt copy, since range reads on the local
// backend are almost always the data cache resolving a miss against a
// segment that is about to be read again.
func (l *LocalAdaptor) ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	f, err := os.Open(l.fullPath(path))
	if os.IsNotExist(err) {
		return nil, ErrSegmentNotExist
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	end := offset + length
	if end > info.Size() {
		end = info.Size()
	}
	if offset > end {
		offset = end
	}
	if info.Size() == 0 || end == offset {
		return []byte{}, nil
	}
	mm, err := gommap.Map(f)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer mm.UnsafeUnmap()
	out := make([]byte, end-offset)
	copy(out, mm[offset:end])
	return out, nil
}

func (l *LocalAdaptor) GetProps(ctx context.Context, path string) (Props, error) {
	info, err := os.Stat(l.fullPath(path))
	if os.IsNotExist(err) {
		return Props{}, ErrSegmentNotExist
	}
	if err != nil {
		return Props{}, err
	}
	m, _ := l.getMeta(path)
	return Props{Length: info.Size(), CommittedBlocks: m.CommittedBlocks, Sealed: m.Sealed}, nil
}

func (l *LocalAdaptor) Remove(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(l.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Delete([]byte(path))
	})
}
