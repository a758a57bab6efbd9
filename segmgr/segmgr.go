// Package segmgr wires together the meta segment and the set of open data
// segments a store instance is currently working with, lazily opening data
// segments on first access and keeping exactly one in-memory DataSegment
// per segment id.
package segmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/airkv-project/airkv/lsmtree"
	"github.com/airkv-project/airkv/metaseg"
	"github.com/airkv-project/airkv/segid"
	"github.com/airkv-project/airkv/segment"
	"github.com/airkv-project/airkv/storage"
)

// Manager owns the meta segment and a cache of opened data segments for one
// store instance.
type Manager struct {
	HomeDir  string
	ClientID uint32

	adaptor storage.Adaptor
	meta    *metaseg.Segment

	mu   sync.Mutex
	data map[segid.ID]*segment.DataSegment

	compressLn bool
}

// Open prepares a Manager against adaptor, opening (and, if absent,
// creating) the meta segment.
func Open(ctx context.Context, adaptor storage.Adaptor, homeDir string, clientID uint32, compressLn bool) (*Manager, error) {
	meta, err := metaseg.Open(ctx, adaptor, segid.NewMeta().Filename())
	if err != nil {
		return nil, err
	}
	return &Manager{
		HomeDir:    homeDir,
		ClientID:   clientID,
		adaptor:    adaptor,
		meta:       meta,
		data:       make(map[segid.ID]*segment.DataSegment),
		compressLn: compressLn,
	}, nil
}

// Meta returns the wrapped meta segment.
func (m *Manager) Meta() *metaseg.Segment { return m.meta }

// DataSegment returns the (lazily opened) DataSegment for id.
func (m *Manager) DataSegment(id segid.ID) *segment.DataSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds, ok := m.data[id]; ok {
		return ds
	}
	compress := m.compressLn && id.Type() == segid.DataLn
	ds := segment.NewDataSegment(id, id.Filename(), m.adaptor, compress)
	m.data[id] = ds
	return ds
}

// HasValidTail reports whether a real tail (not the placeholder) has been
// installed.
func (m *Manager) HasValidTail() bool { return segid.HasPrevTail(m.meta.Tail()) }

// CachedTail returns the tail DataSegment according to the current
// in-memory view, without touching storage.
func (m *Manager) CachedTail() *segment.DataSegment { return m.DataSegment(m.meta.Tail()) }

// UpdatedTail refreshes the meta segment and returns the (possibly new)
// tail DataSegment.
func (m *Manager) UpdatedTail(ctx context.Context) (*segment.DataSegment, error) {
	if _, err := m.meta.RefreshedTail(ctx); err != nil {
		return nil, err
	}
	return m.CachedTail(), nil
}

// CreateNewTailSegment creates the physical blob for a freshly minted tail
// id.
func (m *Manager) CreateNewTailSegment(ctx context.Context, id segid.ID) error {
	return m.adaptor.Create(ctx, id.Filename())
}

// OpenSegDesc resolves a lsmtree.SegDesc to its DataSegment, the
// SegmentOpener shape consistency.Snapshot.Get requires.
func (m *Manager) OpenSegDesc(desc lsmtree.SegDesc) (*segment.DataSegment, error) {
	if desc.ID == 0 {
		return nil, fmt.Errorf("segmgr: cannot open placeholder segment")
	}
	return m.DataSegment(desc.ID), nil
}
