// Package sim drives Path ORAM simulation runs and aggregates the
// stash-size observations they produce into empirical tail
// probabilities P[size(S) > R].
package sim

import "errors"

var (
	ErrInvalidWorkload = errors.New("invalid workload")
	ErrBadRecordFile   = errors.New("malformed record file")
)

// BlockOrder selects how the driver picks block ids.
type BlockOrder int

const (
	// OrderRoundRobin cycles through ids 0..N-1 repeatedly.
	OrderRoundRobin BlockOrder = iota

	// OrderUniform draws a uniform random id per access.
	OrderUniform
)

// OpMix selects how the driver picks read vs write per access.
type OpMix int

const (
	// MixCoinFlip flips a fair coin per access.
	MixCoinFlip OpMix = iota

	MixReadOnly
	MixWriteOnly
)

// Workload describes an access sequence for one simulation run.
type Workload struct {
	Ops    int        // total accesses to perform
	Warmup int        // leading accesses excluded from recording
	Order  BlockOrder // block id selection
	Mix    OpMix      // read/write selection
}

// Validate checks the workload parameters.
func (w Workload) Validate() error {
	if w.Ops < 1 {
		return ErrInvalidWorkload
	}
	if w.Warmup < 0 || w.Warmup >= w.Ops {
		return ErrInvalidWorkload
	}
	return nil
}
