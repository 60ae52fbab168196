package pathoram

import "fmt"

// block represents a single data block (internal form).
type block struct {
	id   int    // Block ID
	leaf int    // Assigned leaf position
	data []byte // Block data
}

// stash holds real blocks not currently placed in the tree. It keeps
// blocks in residence order (oldest resident first), which is the
// tie-break order used during eviction, and tracks ids so a duplicate
// insert is caught immediately.
type stash struct {
	blocks []block
	ids    map[int]struct{}
}

func newStash() *stash {
	return &stash{ids: make(map[int]struct{})}
}

// add inserts a real block. A second resident copy of the same id means
// the tree/stash disjointness invariant has already been broken, so the
// insert fails with ErrInvariantViolation.
func (s *stash) add(b block) error {
	if _, dup := s.ids[b.id]; dup {
		return fmt.Errorf("%w: duplicate copy of block %d in stash", ErrInvariantViolation, b.id)
	}
	s.ids[b.id] = struct{}{}
	s.blocks = append(s.blocks, b)
	return nil
}

// find returns the index of the block with the given id, or -1.
func (s *stash) find(id int) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.blocks {
		if s.blocks[i].id == id {
			return i
		}
	}
	return -1
}

// removeAt removes and returns the block at index i, preserving the
// residence order of the remaining blocks.
func (s *stash) removeAt(i int) block {
	b := s.blocks[i]
	s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
	delete(s.ids, b.id)
	return b
}

// contains reports whether a block with the given id is resident.
func (s *stash) contains(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// size returns the number of resident blocks.
func (s *stash) size() int {
	return len(s.blocks)
}
