package pathoram

// Storage provides bucket-level access to the ORAM tree structure.
// Buckets are stored in a flat array using heap-style indexing:
// root at 0, children of i at 2i+1 and 2i+2, with the leaves occupying
// the last numLeaves slots.
type Storage interface {
	// ReadBucket returns all blocks in the bucket at the given index.
	ReadBucket(idx int) ([]Block, error)

	// WriteBucket writes all blocks to the bucket at the given index.
	WriteBucket(idx int, blocks []Block) error

	// NumBuckets returns the total number of buckets in storage.
	NumBuckets() int

	// BucketSize returns the number of block slots per bucket.
	BucketSize() int

	// BlockSize returns the size of each block's data in bytes.
	BlockSize() int
}

// Block represents a single data block in storage.
type Block struct {
	ID   int    // Block ID (-1 = empty/dummy)
	Leaf int    // Assigned leaf position
	Data []byte // Block data
}

// InMemoryStorage implements Storage over a single flat block arena:
// bucket idx owns slots [idx*Z, (idx+1)*Z). One allocation for the
// whole tree instead of one slice per bucket.
type InMemoryStorage struct {
	arena      []Block
	numBuckets int
	bucketSize int
	blockSize  int
}

// NewInMemoryStorage creates an in-memory storage with the given
// dimensions. All slots start empty (ID = EmptyBlockID).
func NewInMemoryStorage(numBuckets, bucketSize, blockSize int) *InMemoryStorage {
	arena := make([]Block, numBuckets*bucketSize)
	for i := range arena {
		arena[i] = Block{
			ID:   EmptyBlockID,
			Leaf: -1,
			Data: make([]byte, blockSize),
		}
	}
	return &InMemoryStorage{
		arena:      arena,
		numBuckets: numBuckets,
		bucketSize: bucketSize,
		blockSize:  blockSize,
	}
}

// ReadBucket returns a copy of all blocks in the bucket at idx.
// Callers get their own data buffers, never views into the arena.
func (s *InMemoryStorage) ReadBucket(idx int) ([]Block, error) {
	if idx < 0 || idx >= s.numBuckets {
		return nil, ErrInvalidConfig
	}
	result := make([]Block, s.bucketSize)
	for i, b := range s.arena[idx*s.bucketSize : (idx+1)*s.bucketSize] {
		result[i] = copyBlock(b)
	}
	return result, nil
}

// WriteBucket replaces all blocks in the bucket at idx.
func (s *InMemoryStorage) WriteBucket(idx int, blocks []Block) error {
	if idx < 0 || idx >= s.numBuckets {
		return ErrInvalidConfig
	}
	if len(blocks) != s.bucketSize {
		return ErrInvalidConfig
	}
	for i, b := range blocks {
		s.arena[idx*s.bucketSize+i] = copyBlock(b)
	}
	return nil
}

// NumBuckets returns the total number of buckets.
func (s *InMemoryStorage) NumBuckets() int {
	return s.numBuckets
}

// BucketSize returns slots per bucket.
func (s *InMemoryStorage) BucketSize() int {
	return s.bucketSize
}

// BlockSize returns bytes per block.
func (s *InMemoryStorage) BlockSize() int {
	return s.blockSize
}

func copyBlock(b Block) Block {
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return Block{ID: b.ID, Leaf: b.Leaf, Data: data}
}
