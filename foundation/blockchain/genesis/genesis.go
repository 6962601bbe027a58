// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Default values used when no genesis file exists.
const (
	DefaultStartDifficulty = 10
	DefaultBlockInterval   = 5 * time.Second
	DefaultMiningReward    = 10
)

// Genesis represents the genesis file.
type Genesis struct {
	StartDifficulty uint16        `json:"start_difficulty"` // Difficulty of the genesis block and the first mined block.
	BlockInterval   time.Duration `json:"block_interval"`   // Target time between two blocks used for retargeting.
	MiningReward    uint64        `json:"mining_reward"`    // Reward for mining a block, paid by the coinbase transaction.
}

// Default returns the genesis values the chain runs with out of the box.
func Default() Genesis {
	return Genesis{
		StartDifficulty: DefaultStartDifficulty,
		BlockInterval:   DefaultBlockInterval,
		MiningReward:    DefaultMiningReward,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. If the file doesn't exist the
// default values are returned. Values missing from the file are defaulted.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis file %q: %w", path, err)
	}

	def := Default()
	if genesis.StartDifficulty == 0 {
		genesis.StartDifficulty = def.StartDifficulty
	}
	if genesis.BlockInterval == 0 {
		genesis.BlockInterval = def.BlockInterval
	}
	if genesis.MiningReward == 0 {
		genesis.MiningReward = def.MiningReward
	}

	return genesis, nil
}
