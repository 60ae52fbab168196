package pathoram

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// OpType represents the type of ORAM operation.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
)

// PathORAM implements the Path ORAM access protocol over a complete
// binary tree of fixed-capacity buckets. Every access reads one full
// root-to-leaf path into the stash, remaps the touched block to a
// fresh uniform leaf, and evicts stash blocks back onto the same path,
// regardless of whether the operation is a read or a write.
type PathORAM struct {
	cfg       Config
	height    int
	numLeaves int

	storage Storage     // pluggable storage backend
	posMap  PositionMap // pluggable position map
	rng     *rand.Rand  // ordering randomness (initial placement shuffle)

	stash *stash // blocks not yet written back to tree
}

// New creates a new PathORAM instance with explicit dependencies.
// Use this constructor when you need custom storage or position map.
// A nil rng gets a fresh unpredictable seed; pass NewRand(seed) for
// reproducible runs.
func New(cfg Config, storage Storage, posMap PositionMap, rng *rand.Rand) (*PathORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	numLeaves, totalBuckets := cfg.TreeParams()
	if storage.NumBuckets() != totalBuckets || storage.BucketSize() != cfg.BucketSize {
		return nil, ErrInvalidConfig
	}
	if rng == nil {
		rng = NewRand(randomSeed())
	}

	o := &PathORAM{
		cfg:       cfg,
		height:    cfg.Height,
		numLeaves: numLeaves,
		storage:   storage,
		posMap:    posMap,
		rng:       rng,
		stash:     newStash(),
	}

	if cfg.Prefill {
		if err := o.prefill(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// NewInMemory creates a new PathORAM instance with in-memory storage
// and position map. This is the simplest way to create a PathORAM for
// simulation or testing.
func NewInMemory(cfg Config, rng *rand.Rand) (*PathORAM, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if rng == nil {
		rng = NewRand(randomSeed())
	}
	numLeaves, totalBuckets := cfg.TreeParams()

	storage := NewInMemoryStorage(totalBuckets, cfg.BucketSize, cfg.BlockSize)
	posMap := NewInMemoryPositionMap(numLeaves, rng)

	return New(cfg, storage, posMap, rng)
}

// NewRand returns a seedable random source for leaf selection and
// placement ordering. The same seed always yields the same stream.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// randomSeed draws an unpredictable seed for non-reproducible runs.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Capacity returns the number of blocks this ORAM can store.
func (o *PathORAM) Capacity() int {
	return o.cfg.NumBlocks
}

// Height returns the height L of the binary tree. The path to a leaf
// visits L+1 buckets (depths 0..L).
func (o *PathORAM) Height() int {
	return o.height
}

// NumLeaves returns the number of leaf nodes in the tree.
func (o *PathORAM) NumLeaves() int {
	return o.numLeaves
}

// StashSize returns the current number of blocks in the stash.
// This is the primary observable of a simulation run.
func (o *PathORAM) StashSize() int {
	return o.stash.size()
}

// Size returns the number of blocks with assigned positions.
func (o *PathORAM) Size() int {
	return o.posMap.Size()
}

// BlockSize returns the configured block size.
func (o *PathORAM) BlockSize() int {
	return o.cfg.BlockSize
}

// Access performs an oblivious read or write operation.
// Valid block IDs are 0 to NumBlocks-1.
// For OpRead, data is ignored; for OpWrite, data replaces the block's
// payload. Returns the block's previous value in both cases.
func (o *PathORAM) Access(op OpType, blockID int, data []byte) ([]byte, error) {
	if blockID < 0 || blockID >= o.cfg.NumBlocks {
		return nil, ErrInvalidBlockID
	}
	if op == OpRead {
		return o.access(blockID, nil)
	}
	if len(data) != o.cfg.BlockSize {
		return nil, ErrInvalidDataSize
	}
	return o.access(blockID, data)
}

// Read reads the block with the given ID.
func (o *PathORAM) Read(blockID int) ([]byte, error) {
	return o.Access(OpRead, blockID, nil)
}

// Write writes data to the block with the given ID.
// Returns the previous value stored at this block.
func (o *PathORAM) Write(blockID int, data []byte) ([]byte, error) {
	return o.Access(OpWrite, blockID, data)
}

// access performs the core Path ORAM access operation.
// If newData is nil, it's a read; otherwise it's a write.
func (o *PathORAM) access(blockID int, newData []byte) ([]byte, error) {
	// Step 1: look up the block's current leaf. A never-accessed block
	// gets a fresh uniform assignment for its first path read.
	leaf, ok := o.posMap.Lookup(blockID)
	if !ok {
		leaf = o.posMap.Reassign(blockID)
	}

	// Step 2: remap to a fresh leaf drawn independently of the old one.
	// The old leaf still determines which path is read below. Reads
	// remap exactly like writes; skipping this for reads would leak
	// the access pattern.
	newLeaf := o.posMap.Reassign(blockID)

	// Step 3: read the whole path into the stash.
	path := o.Path(leaf)
	if err := o.readPathIntoStash(path); err != nil {
		return nil, err
	}

	// Step 4: locate the block in the stash and apply the operation.
	result := make([]byte, o.cfg.BlockSize)
	if i := o.stash.find(blockID); i >= 0 {
		b := &o.stash.blocks[i]
		copy(result, b.data)
		b.leaf = newLeaf
		if newData != nil {
			copy(b.data, newData)
		}
	} else {
		// First touch of an absent block: previous value is zeros.
		nb := block{
			id:   blockID,
			leaf: newLeaf,
			data: make([]byte, o.cfg.BlockSize),
		}
		if newData != nil {
			copy(nb.data, newData)
		}
		if err := o.stash.add(nb); err != nil {
			return nil, err
		}
	}

	// Step 5: evict stash blocks back onto the path just read.
	if err := o.evictWithStrategy(path); err != nil {
		return nil, err
	}

	return result, nil
}

// readPathIntoStash moves all real blocks on the path into the stash,
// leaving the path buckets empty.
func (o *PathORAM) readPathIntoStash(path []int) error {
	for _, bucketIdx := range path {
		bucket, err := o.storage.ReadBucket(bucketIdx)
		if err != nil {
			return err
		}
		for i := range bucket {
			if bucket[i].ID == EmptyBlockID {
				continue
			}
			err := o.stash.add(block{
				id:   bucket[i].ID,
				leaf: bucket[i].Leaf,
				data: bucket[i].Data,
			})
			if err != nil {
				return err
			}
			bucket[i].ID = EmptyBlockID
		}
		if err := o.storage.WriteBucket(bucketIdx, bucket); err != nil {
			return err
		}
	}
	return nil
}

// prefill assigns every block a random leaf and places it into the
// tree, deepest bucket on its path first. Blocks are placed in a
// shuffled order so no id range is systematically favored; blocks
// that find no free slot start in the stash. The default payload is
// the block id, little-endian in the first 8 bytes.
func (o *PathORAM) prefill() error {
	for _, id := range o.rng.Perm(o.cfg.NumBlocks) {
		leaf := o.posMap.Reassign(id)
		data := make([]byte, o.cfg.BlockSize)
		if o.cfg.BlockSize >= 8 {
			binary.LittleEndian.PutUint64(data[:8], uint64(id))
		}

		placed := false
		for _, bucketIdx := range o.Path(leaf) {
			bucket, err := o.storage.ReadBucket(bucketIdx)
			if err != nil {
				return err
			}
			slot := -1
			for j := range bucket {
				if bucket[j].ID == EmptyBlockID {
					slot = j
					break
				}
			}
			if slot == -1 {
				continue
			}
			bucket[slot] = Block{ID: id, Leaf: leaf, Data: data}
			if err := o.storage.WriteBucket(bucketIdx, bucket); err != nil {
				return err
			}
			placed = true
			break
		}
		if !placed {
			if err := o.stash.add(block{id: id, leaf: leaf, data: data}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Path returns bucket indices from leaf to root.
// Leaf index is 0-based among all leaves.
func (o *PathORAM) Path(leaf int) []int {
	path := make([]int, o.height+1)
	// Convert leaf index to bucket index: leaves start at index numLeaves-1
	bucket := o.numLeaves - 1 + leaf
	for i := range path {
		path[i] = bucket
		bucket = (bucket - 1) / 2 // parent
	}
	return path
}

// canPlaceAt returns true if a block assigned to the given leaf
// can be placed in the bucket at bucketIdx.
// Uses ancestry check: bucket B is on leaf L's path iff L's leaf bucket
// is in the subtree rooted at B.
func (o *PathORAM) canPlaceAt(leaf, bucketIdx int) bool {
	// Walk from the leaf's bucket to the root, checking if we hit bucketIdx
	for b := o.numLeaves - 1 + leaf; b >= 0; b = (b - 1) / 2 {
		if b == bucketIdx {
			return true
		}
		if b == 0 {
			break
		}
	}
	return false
}

// VerifyInvariants audits the residency and capacity invariants:
// every real block in the tree sits on the path to its assigned leaf,
// no bucket holds more than Z real blocks, and no block id is resident
// more than once across tree and stash. Returns a wrapped
// ErrInvariantViolation describing the first violation found.
func (o *PathORAM) VerifyInvariants() error {
	seen := make(map[int]int) // id -> bucket index holding it
	for idx := 0; idx < o.storage.NumBuckets(); idx++ {
		bucket, err := o.storage.ReadBucket(idx)
		if err != nil {
			return err
		}
		real := 0
		for _, b := range bucket {
			if b.ID == EmptyBlockID {
				continue
			}
			real++
			if prev, dup := seen[b.ID]; dup {
				return fmt.Errorf("%w: block %d resident in buckets %d and %d",
					ErrInvariantViolation, b.ID, prev, idx)
			}
			seen[b.ID] = idx
			leaf, ok := o.posMap.Lookup(b.ID)
			if !ok || leaf != b.Leaf || !o.canPlaceAt(leaf, idx) {
				return fmt.Errorf("%w: block %d in bucket %d is off its assigned path (leaf %d)",
					ErrInvariantViolation, b.ID, idx, leaf)
			}
		}
		if real > o.cfg.BucketSize {
			return fmt.Errorf("%w: bucket %d holds %d real blocks, capacity %d",
				ErrInvariantViolation, idx, real, o.cfg.BucketSize)
		}
	}
	for _, b := range o.stash.blocks {
		if idx, dup := seen[b.id]; dup {
			return fmt.Errorf("%w: block %d resident in both stash and bucket %d",
				ErrInvariantViolation, b.id, idx)
		}
	}
	return nil
}
