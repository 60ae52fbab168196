package sim

import (
	"fmt"

	"github.com/BurntSushi/toml"

	pathoram "github.com/etclab/pathoram-sim"
)

// FileConfig is the TOML run-file form of the simulator configuration.
// Fields left at zero values fall back to CLI flag values.
type FileConfig struct {
	Blocks   int    `toml:"blocks"`
	Height   int    `toml:"height"`
	ZValues  []int  `toml:"z_values"`
	Ops      int    `toml:"ops"`
	Warmup   int    `toml:"warmup"`
	Seed     uint64 `toml:"seed"`
	OutDir   string `toml:"outdir"`
	Plot     string `toml:"plot"`
	Strategy string `toml:"strategy"`
	Order    string `toml:"order"`
	Mix      string `toml:"mix"`
}

// LoadFileConfig reads a TOML run file. Unknown keys are rejected so a
// typo in a run file fails loudly instead of silently using a default.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if und := meta.Undecoded(); len(und) > 0 {
		return FileConfig{}, fmt.Errorf("load config %s: unknown key %q", path, und[0].String())
	}
	return cfg, nil
}

// ParseStrategy maps a strategy name to its EvictionStrategy.
func ParseStrategy(s string) (pathoram.EvictionStrategy, error) {
	switch s {
	case "", "level":
		return pathoram.EvictLevelByLevel, nil
	case "greedy":
		return pathoram.EvictGreedyByDepth, nil
	}
	return 0, fmt.Errorf("unknown eviction strategy %q (want level or greedy)", s)
}

// ParseOrder maps a block-order name to its BlockOrder.
func ParseOrder(s string) (BlockOrder, error) {
	switch s {
	case "", "roundrobin":
		return OrderRoundRobin, nil
	case "uniform":
		return OrderUniform, nil
	}
	return 0, fmt.Errorf("unknown block order %q (want roundrobin or uniform)", s)
}

// ParseMix maps an op-mix name to its OpMix.
func ParseMix(s string) (OpMix, error) {
	switch s {
	case "", "coinflip":
		return MixCoinFlip, nil
	case "read":
		return MixReadOnly, nil
	case "write":
		return MixWriteOnly, nil
	}
	return 0, fmt.Errorf("unknown op mix %q (want coinflip, read or write)", s)
}
