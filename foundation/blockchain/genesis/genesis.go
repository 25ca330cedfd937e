// Package genesis maintains access to the protocol settings every node
// must agree on.
package genesis

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// Genesis represents the protocol settings. Every node on the network needs
// to run with the same values or blocks mined by one node will never
// validate on another.
type Genesis struct {
	ChainID            uint16 `json:"chain_id"`             // An unique id for this running network.
	TransPerBlock      uint16 `json:"trans_per_block"`      // The number of transactions that form a block.
	Difficulty         uint16 `json:"difficulty"`           // Number of leading zeroes needed to solve the work problem.
	MiningReward       uint64 `json:"mining_reward"`        // Reward for mining a block.
	GenesisReward      uint64 `json:"genesis_reward"`       // Reward the miner of a genesis block credits themselves.
	StorageReward      uint64 `json:"storage_reward"`       // Fee diverted to the storage account per large transaction.
	StorageRewardFloor uint64 `json:"storage_reward_floor"` // Transaction value at which the storage fee starts to apply.
	StorageBalance     uint64 `json:"storage_balance"`      // Balance the storage account starts a chain with.
}

// Default returns the settings the reference network runs with.
func Default() Genesis {
	return Genesis{
		ChainID:            1,
		TransPerBlock:      2,
		Difficulty:         4,
		MiningReward:       1,
		GenesisReward:      100,
		StorageReward:      1,
		StorageRewardFloor: 10,
		StorageBalance:     100,
	}
}

// StorageFeeFor returns the storage fee a transaction of the specified
// value carries. Values at or above the floor divert a fixed fee to the
// storage account.
func (g Genesis) StorageFeeFor(value uint64) uint64 {
	if value >= g.StorageRewardFloor {
		return g.StorageReward
	}
	return 0
}

// Load opens and consumes the genesis file. A missing file is not an
// error, the defaults are used instead.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
