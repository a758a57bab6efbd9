package airkv

import "github.com/airkv-project/airkv/httpapi"

// Status summarizes the store's current shape, used by the debug HTTP
// surface in package httpapi.
func (s *Store) Status() httpapi.Status {
	tree := s.mgr.Meta().TreeDescriptor()
	sizes := make([]int, len(tree.Levels))
	for i, lvl := range tree.Levels {
		sizes[i] = len(lvl.Segs)
	}
	return httpapi.Status{
		ClientID:   s.clientID,
		TailID:     tree.Tail.ID.String(),
		LevelCount: len(tree.Levels),
		LevelSizes: sizes,
	}
}
