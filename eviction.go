package pathoram

import "fmt"

// evictWithStrategy dispatches to the configured eviction strategy.
func (o *PathORAM) evictWithStrategy(path []int) error {
	switch o.cfg.EvictionStrategy {
	case EvictGreedyByDepth:
		return o.evictGreedyByDepth(path)
	default:
		return o.evictLevelByLevel(path)
	}
}

// evictLevelByLevel writes stash blocks back to the path one bucket at
// a time, deepest bucket first (path[0] is the leaf). Each bucket takes
// eligible stash blocks in residence order until its Z slots are full;
// remaining slots stay empty (dummies). Starting at the leaf means a
// block always lands in the deepest bucket with a free slot among those
// it is eligible for.
func (o *PathORAM) evictLevelByLevel(path []int) error {
	for _, bucketIdx := range path {
		bucket, err := o.storage.ReadBucket(bucketIdx)
		if err != nil {
			return err
		}
		if err := checkBucketCapacity(bucketIdx, bucket, o.cfg.BucketSize); err != nil {
			return err
		}

		modified := false
		for slot := range bucket {
			if bucket[slot].ID != EmptyBlockID {
				continue // slot occupied
			}
			// Oldest eligible stash resident wins the slot.
			found := -1
			for i := range o.stash.blocks {
				if o.canPlaceAt(o.stash.blocks[i].leaf, bucketIdx) {
					found = i
					break
				}
			}
			if found == -1 {
				break // nothing eligible for this bucket
			}
			b := o.stash.removeAt(found)
			bucket[slot] = Block{ID: b.id, Leaf: b.leaf, Data: b.data}
			modified = true
		}

		if modified {
			if err := o.storage.WriteBucket(bucketIdx, bucket); err != nil {
				return err
			}
		}
	}

	return o.checkStashLimit()
}

// evictGreedyByDepth places each stash block at its deepest possible
// bucket on the path, scanning the stash in residence order.
func (o *PathORAM) evictGreedyByDepth(path []int) error {
	// Read all buckets on path
	buckets := make([][]Block, len(path))
	for i, bucketIdx := range path {
		var err error
		buckets[i], err = o.storage.ReadBucket(bucketIdx)
		if err != nil {
			return err
		}
		if err := checkBucketCapacity(bucketIdx, buckets[i], o.cfg.BucketSize); err != nil {
			return err
		}
	}

	i := 0
	for i < len(o.stash.blocks) {
		b := o.stash.blocks[i]
		placed := false

		// Try deepest level first (path[0] is the leaf bucket)
		for level := 0; level < len(path) && !placed; level++ {
			if !o.canPlaceAt(b.leaf, path[level]) {
				continue
			}
			for slot := range buckets[level] {
				if buckets[level][slot].ID == EmptyBlockID {
					o.stash.removeAt(i)
					buckets[level][slot] = Block{ID: b.id, Leaf: b.leaf, Data: b.data}
					placed = true
					break
				}
			}
		}
		if !placed {
			i++
		}
	}

	// Write all buckets back
	for i, bucketIdx := range path {
		if err := o.storage.WriteBucket(bucketIdx, buckets[i]); err != nil {
			return err
		}
	}

	return o.checkStashLimit()
}

// checkBucketCapacity guards against a storage backend handing back a
// bucket already holding more than Z real blocks.
func checkBucketCapacity(bucketIdx int, bucket []Block, z int) error {
	real := 0
	for _, b := range bucket {
		if b.ID != EmptyBlockID {
			real++
		}
	}
	if real > z {
		return fmt.Errorf("%w: bucket %d holds %d real blocks, capacity %d",
			ErrInvariantViolation, bucketIdx, real, z)
	}
	return nil
}

func (o *PathORAM) checkStashLimit() error {
	if o.cfg.StashLimit > 0 && o.stash.size() > o.cfg.StashLimit {
		return ErrStashOverflow
	}
	return nil
}
