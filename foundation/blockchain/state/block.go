package state

import (
	"encoding/json"
	"fmt"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain. A block identical
// to the current tip is accepted without changes and reported as not new, so
// it isn't forwarded again.
func (s *State) ProcessProposedBlock(block database.Block) (bool, error) {
	hash := block.Hash()

	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.PrevHash, hash, len(block.Trans))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", hash)

	if latest, err := s.activeDB().LatestBlock(); err == nil && latest.Hash == hash {
		s.evHandler("state: ProcessProposedBlock: blk[%d] is already the latest block", block.Height)
		return false, nil
	}

	if _, err := s.addBlock(block); err != nil {
		return false, err
	}

	// If a mining attempt is in progress it is now working on a stale tip
	// and needs to stop immediately.
	s.evHandler("state: ProcessProposedBlock: signal mining to preempt")
	s.preemption.Raise()

	blocksAccepted.Inc()

	return true, nil
}

// =============================================================================

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(blockData database.BlockData) {
	blockJSON, err := json.Marshal(blockData)
	if err != nil {
		blockJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: %s`, string(blockJSON))
}
