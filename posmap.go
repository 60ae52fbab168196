package pathoram

import "math/rand/v2"

// PositionMap tracks block-to-leaf assignments and owns the uniform
// leaf draw performed on every reassignment. For recursive ORAM, this
// can be implemented as another ORAM instance.
type PositionMap interface {
	// Lookup returns the leaf position for blockID.
	// Returns (leaf, true) if assigned, (0, false) if not.
	Lookup(blockID int) (leaf int, exists bool)

	// Reassign draws a fresh leaf for blockID uniformly at random,
	// independent of any previous assignment, stores it and returns it.
	Reassign(blockID int) (leaf int)

	// Size returns the number of blocks with assigned positions.
	Size() int
}

// InMemoryPositionMap implements PositionMap using a Go map and a
// seedable random source.
type InMemoryPositionMap struct {
	m         map[int]int
	numLeaves int
	rng       *rand.Rand
}

// NewInMemoryPositionMap creates an empty position map over a tree with
// the given number of leaves. Leaf draws come from rng, so runs are
// reproducible for a fixed seed.
func NewInMemoryPositionMap(numLeaves int, rng *rand.Rand) *InMemoryPositionMap {
	return &InMemoryPositionMap{
		m:         make(map[int]int),
		numLeaves: numLeaves,
		rng:       rng,
	}
}

// Lookup returns the leaf position for blockID.
func (p *InMemoryPositionMap) Lookup(blockID int) (int, bool) {
	leaf, ok := p.m[blockID]
	return leaf, ok
}

// Reassign stores and returns a fresh uniform leaf for blockID.
func (p *InMemoryPositionMap) Reassign(blockID int) int {
	leaf := p.rng.IntN(p.numLeaves)
	p.m[blockID] = leaf
	return leaf
}

// Size returns the number of blocks with assigned positions.
func (p *InMemoryPositionMap) Size() int {
	return len(p.m)
}
