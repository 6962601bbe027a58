package state

import (
	"errors"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ErrNotFound is returned when a queried account or block doesn't exist.
var ErrNotFound = errors.New("not found")

// QueryLastest represents to query the latest block in the chain.
const QueryLastest = ^uint64(0) >> 1

// =============================================================================

// QueryBalance returns the balance of the account from the active ledger.
func (s *State) QueryBalance(address string) (uint64, error) {
	balance, exists := s.activeDB().Balance(address)
	if !exists {
		return 0, ErrNotFound
	}

	return balance, nil
}

// QueryBlocksByNumber returns the set of blocks based on block heights. The
// range is clipped to the blocks that exist.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.BlockData {
	blocks := s.activeDB().Blocks()
	if len(blocks) == 0 {
		return nil
	}

	latest := blocks[len(blocks)-1].Height
	if from == QueryLastest {
		from = latest
		to = latest
	}
	if to == QueryLastest || to > latest {
		to = latest
	}
	if from == 0 {
		from = 1
	}

	var out []database.BlockData
	for i := from; i <= to; i++ {
		out = append(out, blocks[i-1])
	}

	return out
}
