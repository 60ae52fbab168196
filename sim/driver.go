package sim

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pathoram "github.com/etclab/pathoram-sim"
)

// Observation is one stash-size sample: the access index it was taken
// at and the stash size right after that access completed.
type Observation struct {
	Index     int
	StashSize int
}

// Driver issues a workload of randomized accesses against one PathORAM
// instance and records the stash size after each access. The driver's
// workload randomness is a separate stream from the ORAM's leaf
// randomness, so both can be seeded independently from one run seed.
type Driver struct {
	oram *pathoram.PathORAM
	wl   Workload
	rng  *rand.Rand
	log  *zap.SugaredLogger

	runID    string
	versions []int
	next     int // round-robin cursor
}

// NewDriver creates a driver for the given ORAM and workload.
// A nil logger disables logging.
func NewDriver(oram *pathoram.PathORAM, wl Workload, rng *rand.Rand, logger *zap.Logger) (*Driver, error) {
	if err := wl.Validate(); err != nil {
		return nil, err
	}
	if oram.BlockSize() < 16 {
		return nil, fmt.Errorf("%w: driver payloads need a block size of at least 16 bytes, got %d",
			ErrInvalidWorkload, oram.BlockSize())
	}
	if rng == nil {
		rng = pathoram.NewRand(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		oram:     oram,
		wl:       wl,
		rng:      rng,
		log:      logger.Sugar(),
		runID:    uuid.NewString(),
		versions: make([]int, oram.Capacity()),
	}, nil
}

// RunID returns the unique id of this run, for log correlation.
func (d *Driver) RunID() string {
	return d.runID
}

// Run executes the workload and returns one observation per
// post-warmup access, in access order.
func (d *Driver) Run() ([]Observation, error) {
	d.log.Infow("simulation run starting",
		"run_id", d.runID,
		"blocks", d.oram.Capacity(),
		"height", d.oram.Height(),
		"ops", d.wl.Ops,
		"warmup", d.wl.Warmup,
	)

	samples := make([]Observation, 0, d.wl.Ops-d.wl.Warmup)
	maxStash := 0
	for t := 0; t < d.wl.Ops; t++ {
		id := d.nextBlock()
		if err := d.step(t, id); err != nil {
			return nil, fmt.Errorf("access %d (block %d): %w", t, id, err)
		}
		if t >= d.wl.Warmup {
			size := d.oram.StashSize()
			samples = append(samples, Observation{Index: t, StashSize: size})
			if size > maxStash {
				maxStash = size
			}
		}
	}

	d.log.Infow("simulation run finished",
		"run_id", d.runID,
		"recorded", len(samples),
		"max_stash", maxStash,
	)
	return samples, nil
}

// step performs one access. Writes carry a distinct payload per block
// version so round-trip bugs surface as data mismatches, not silently.
func (d *Driver) step(t, id int) error {
	write := false
	switch d.wl.Mix {
	case MixWriteOnly:
		write = true
	case MixReadOnly:
		write = false
	default:
		write = d.rng.IntN(2) == 1
	}

	if write {
		d.versions[id]++
		data := make([]byte, d.oram.BlockSize())
		binary.LittleEndian.PutUint64(data[0:8], uint64(id))
		binary.LittleEndian.PutUint64(data[8:16], uint64(d.versions[id]))
		_, err := d.oram.Write(id, data)
		return err
	}
	_, err := d.oram.Read(id)
	return err
}

func (d *Driver) nextBlock() int {
	if d.wl.Order == OrderUniform {
		return d.rng.IntN(d.oram.Capacity())
	}
	id := d.next
	d.next++
	if d.next == d.oram.Capacity() {
		d.next = 0
	}
	return id
}
