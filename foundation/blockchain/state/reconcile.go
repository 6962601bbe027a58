package state

import (
	"fmt"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ReconcileResult represents the outcome of reconciling with a chain dump.
type ReconcileResult string

// Set of outcomes for a reconciliation.
const (
	ChainReplaced ReconcileResult = "replaced"
	ChainKept     ReconcileResult = "kept"
)

// Reconcile takes the full chain of another node and replaces the active
// ledger with it when it is longer and valid from genesis. The candidate is
// built on a brand new ledger so a failure at any block leaves the active
// ledger untouched.
func (s *State) Reconcile(dump []database.BlockData) (ReconcileResult, error) {
	s.evHandler("state: Reconcile: started: blocks[%d]", len(dump))
	defer s.evHandler("state: Reconcile: completed")

	if length := s.activeDB().Length(); len(dump) <= length {
		return ChainKept, &database.RejectError{
			Kind: database.ErrInsufficientChainLength,
			Msg:  fmt.Sprintf("candidate has %d blocks, local chain has %d", len(dump), length),
		}
	}

	blocks := make([]database.Block, len(dump))
	for i, blockData := range dump {
		blocks[i] = database.ToBlock(blockData)
	}

	// This is the expensive part and runs without holding the state lock.
	candidate, err := database.Replay(s.genesis, blocks, database.EventHandler(s.evHandler))
	if err != nil {
		s.evHandler("state: Reconcile: candidate chain invalid: %s", err)
		return ChainKept, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The local chain may have grown while the candidate was replayed.
	if candidate.Length() <= s.db.Length() {
		return ChainKept, &database.RejectError{
			Kind: database.ErrInsufficientChainLength,
			Msg:  fmt.Sprintf("candidate has %d blocks, local chain grew to %d", candidate.Length(), s.db.Length()),
		}
	}

	s.db = candidate
	s.preemption.Raise()

	s.pruneMempool()

	chainReplacements.Inc()
	if latest, err := candidate.LatestBlock(); err == nil {
		chainHeight.Set(float64(latest.Height))
	}

	s.evHandler("state: Reconcile: active ledger replaced: blocks[%d]", candidate.Length())

	return ChainReplaced, nil
}
