package pathoram

import "errors"

// EmptyBlockID marks a block slot as empty/dummy.
const EmptyBlockID = -1

var (
	ErrInvalidConfig      = errors.New("invalid PathORAM configuration")
	ErrInvalidBlockID     = errors.New("invalid block ID")
	ErrInvalidDataSize    = errors.New("data size doesn't match block size")
	ErrStashOverflow      = errors.New("stash overflow")
	ErrInvariantViolation = errors.New("protocol invariant violated")
)

// EvictionStrategy defines how blocks are evicted from stash to tree.
type EvictionStrategy int

const (
	// EvictLevelByLevel iterates path buckets from leaf to root, filling
	// each bucket's free slots from the stash in residence order.
	// This is the baseline read-path eviction strategy.
	EvictLevelByLevel EvictionStrategy = iota

	// EvictGreedyByDepth places each stash block at its deepest possible
	// bucket first. Reduces stash pressure by maximizing depth utilization.
	EvictGreedyByDepth
)

// Config holds PathORAM configuration parameters.
type Config struct {
	NumBlocks        int              // Total number of blocks to support (valid IDs: 0 to NumBlocks-1)
	Height           int              // Tree height L: 2^L leaves, buckets at depths 0..L (0 = derive from NumBlocks)
	BucketSize       int              // Number of blocks per bucket (Z parameter)
	BlockSize        int              // Size of each block in bytes
	StashLimit       int              // Maximum stash size before error (0 = unbounded)
	EvictionStrategy EvictionStrategy // Eviction strategy to use
	Prefill          bool             // Place every block into the tree at construction
}

// Validate checks the configuration for errors and applies defaults.
// Returns a copy of the config with defaults applied.
//
// A zero BucketSize or BlockSize means "unset" and receives a default;
// negative values are rejected. A zero Height is computed as the smallest
// L with 2^L >= NumBlocks; an explicit Height whose leaf count cannot
// address NumBlocks blocks is rejected.
func (c Config) Validate() (Config, error) {
	if c.NumBlocks < 1 {
		return c, ErrInvalidConfig
	}
	if c.BucketSize == 0 {
		c.BucketSize = 4
	}
	if c.BucketSize < 1 {
		return c, ErrInvalidConfig
	}
	if c.BlockSize == 0 {
		c.BlockSize = 16
	}
	if c.BlockSize < 1 {
		return c, ErrInvalidConfig
	}
	if c.StashLimit < 0 || c.Height < 0 {
		return c, ErrInvalidConfig
	}
	if c.Height == 0 {
		c.Height = minHeight(c.NumBlocks)
	}
	if 1<<c.Height < c.NumBlocks {
		return c, ErrInvalidConfig
	}
	return c, nil
}

// TreeParams calculates tree dimensions from a validated config.
// Returns (numLeaves, totalBuckets).
func (c Config) TreeParams() (numLeaves, totalBuckets int) {
	numLeaves = 1 << c.Height
	totalBuckets = (1 << (c.Height + 1)) - 1
	return
}

// minHeight returns the smallest height whose leaf count covers n blocks.
func minHeight(n int) int {
	h := 1
	for 1<<h < n {
		h++
	}
	return h
}
