package state

import (
	"context"
	"errors"
	"time"

	"github.com/powledger/node/foundation/blockchain/database"
)

// MineResult represents the outcome of a mining attempt.
type MineResult string

// Set of outcomes for a mining attempt.
const (
	MineSolved    MineResult = "solved"
	MinePreempted MineResult = "preempted"
	MineDiscarded MineResult = "discarded"
	MineStopped   MineResult = "stopped"
)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. When the ledger is empty the genesis block is
// created instead. An error is only returned with MineDiscarded and carries
// the reason the ledger refused the block.
func (s *State) MineNewBlock(ctx context.Context) (database.BlockData, MineResult, error) {

	// Anything that changed the tip before this point is captured by the
	// snapshot below, so a stale signal must not abort this attempt.
	s.preemption.Clear()

	db := s.activeDB()

	latest, err := db.LatestBlock()
	if errors.Is(err, database.ErrEmptyLedger) {
		return s.createGenesis()
	}

	s.evHandler("state: MineNewBlock: MINING: snapshot mempool")

	trans := s.mempool.PickFirst(-1)

	// Pay ourselves the reward for this block.
	coinbase, err := database.NewCoinbaseTx(s.minerKey, s.genesis.MiningReward)
	if err != nil {
		return database.BlockData{}, MineDiscarded, err
	}
	trans = append(trans, coinbase)

	candidate := database.Block{
		Height:     latest.Height + 1,
		Difficulty: db.NextDifficulty(),
		PrevHash:   latest.Hash,
		TimeStamp:  uint64(time.Now().UTC().Unix()),
		Trans:      trans,
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: difficulty[%d]: numTrans[%d]", candidate.Height, candidate.Difficulty, len(trans))

	t := time.Now()
	block, err := database.POW(ctx, database.POWArgs{
		Block:     candidate,
		Preempted: s.preemption.Raised,
		EvHandler: s.evHandler,
	})
	miningDuration.Observe(time.Since(t).Seconds())

	switch {
	case errors.Is(err, database.ErrPreempted):
		s.preemption.Clear()
		blocksPreempted.Inc()
		s.evHandler("state: MineNewBlock: MINING: skipped blk[%d]", candidate.Height)
		return database.BlockData{}, MinePreempted, nil

	case err != nil:
		s.evHandler("state: MineNewBlock: MINING: stopped blk[%d]: %s", candidate.Height, err)
		return database.BlockData{}, MineStopped, nil
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	blockData, err := s.addBlock(block)
	if err != nil {
		blocksDiscarded.Inc()
		s.evHandler("state: MineNewBlock: MINING: discarded blk[%d]: %s", block.Height, err)
		return database.BlockData{}, MineDiscarded, err
	}

	blocksMined.Inc()

	return blockData, MineSolved, nil
}

// =============================================================================

// createGenesis adds the first block to an empty ledger.
func (s *State) createGenesis() (database.BlockData, MineResult, error) {
	s.evHandler("state: MineNewBlock: MINING: create genesis block")

	genesis := database.NewGenesisBlock(uint(s.genesis.StartDifficulty), uint64(time.Now().UTC().Unix()))

	blockData, err := s.addBlock(genesis)
	if err != nil {
		return database.BlockData{}, MineDiscarded, err
	}

	blocksMined.Inc()

	return blockData, MineSolved, nil
}

// addBlock takes the block and validates the block against the consensus
// rules. If the block passes, the consumed transactions are removed from the
// mempool and the remaining ones are checked against the new balances.
func (s *State) addBlock(block database.Block) (database.BlockData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blockData, err := s.db.AddBlock(block)
	if err != nil {
		if database.IsRejection(err) {
			blocksRejected.WithLabelValues(rejectionLabel(err)).Inc()
		}
		return database.BlockData{}, err
	}

	s.evHandler("state: addBlock: remove transactions from mempool")

	s.mempool.Delete(block.Trans...)
	s.pruneMempool()

	chainHeight.Set(float64(blockData.Height))

	// Send an event about this new block.
	s.blockEvent(blockData)

	return blockData, nil
}
