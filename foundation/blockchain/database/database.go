// Package database handles the in memory ledger for the blockchain. It holds
// the accepted blocks and the balance table derived from them, and owns the
// consensus rules a block must pass to be added.
package database

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// Database manages the accepted blocks and the balances of the accounts who
// have transacted on the blockchain. The balances are a materialized view of
// the blocks and have no other mutation path than AddBlock.
type Database struct {
	mu sync.RWMutex

	genesis   genesis.Genesis
	blocks    []BlockData
	balances  map[string]uint64
	evHandler EventHandler
}

// New constructs a new empty database.
func New(genesis genesis.Genesis, evHandler EventHandler) *Database {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	return &Database{
		genesis:   genesis,
		balances:  make(map[string]uint64),
		evHandler: ev,
	}
}

// Replay builds a brand new database by passing every block through AddBlock
// in order. Any failure discards the new database.
func Replay(genesis genesis.Genesis, blocks []Block, evHandler EventHandler) (*Database, error) {
	db := New(genesis, evHandler)

	for _, block := range blocks {
		if _, err := db.AddBlock(block); err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}

	return db, nil
}

// Genesis returns the genesis information the database validates with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// Length returns the number of blocks in the chain.
func (db *Database) Length() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return len(db.blocks)
}

// LatestBlock returns the last accepted block.
func (db *Database) LatestBlock() (BlockData, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	latest, err := db.latestBlock()
	if err != nil {
		return BlockData{}, err
	}

	return latest.clone(), nil
}

// Blocks returns a deep copy of the accepted blocks, genesis first. Accepted
// blocks are immutable, so nothing returned here shares memory with the ledger.
func (db *Database) Blocks() []BlockData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	blocks := make([]BlockData, len(db.blocks))
	for i, blockData := range db.blocks {
		blocks[i] = blockData.clone()
	}
	return blocks
}

// Balances makes a copy of the current balances.
func (db *Database) Balances() map[string]uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	balances := make(map[string]uint64, len(db.balances))
	for address, balance := range db.balances {
		balances[address] = balance
	}
	return balances
}

// Balance returns the balance for the specified address and whether the
// address is known to the ledger.
func (db *Database) Balance(address string) (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	balance, exists := db.balances[address]
	return balance, exists
}

// NextDifficulty returns the difficulty the next block must carry.
func (db *Database) NextDifficulty() uint {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.nextDifficulty()
}

// =============================================================================

// AddBlock is the single gate for chain mutation. It validates the block
// against the consensus rules and on success commits the balance changes and
// appends the block. On failure nothing changes.
func (db *Database) AddBlock(block Block) (BlockData, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Never trust a provided hash, compute it from the fields. The ledger
	// keeps its own copy so the caller can't change the block once accepted.
	blockData := NewBlockData(block).clone()
	block = blockData.Block

	db.evHandler("database: AddBlock: validate: blk[%d]: hash[%s]", block.Height, blockData.Hash)

	if err := db.validateHeader(blockData); err != nil {
		db.evHandler("database: AddBlock: REJECTED: %s", err)
		return BlockData{}, err
	}

	staged, err := db.stageTransactions(block)
	if err != nil {
		db.evHandler("database: AddBlock: REJECTED: %s", err)
		return BlockData{}, err
	}

	// The whole block is known good, commit the staged changes.
	for address, balance := range staged {
		db.balances[address] = balance
	}
	db.blocks = append(db.blocks, blockData)

	db.evHandler("database: AddBlock: accepted: blk[%d]: numTrans[%d]", block.Height, len(block.Trans))

	return blockData.clone(), nil
}

// ValidatePending walks the pending transactions in order against a scratch
// copy of the balances and splits them into the ones that can still be
// applied and the errors for the ones that can't.
func (db *Database) ValidatePending(pending []Tx) ([]Tx, []error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	staged := make(map[string]uint64)

	var valid []Tx
	var errs []error
	for _, tx := range pending {
		if tx.IsCoinbase() {
			errs = append(errs, fmt.Errorf("%w: coinbase transactions are created by miners", ErrCoinbaseViolation))
			continue
		}

		if err := db.verifyTx(0, tx); err != nil {
			errs = append(errs, err)
			continue
		}

		if err := db.stageTransfer(staged, 0, tx); err != nil {
			errs = append(errs, err)
			continue
		}

		valid = append(valid, tx)
	}

	return valid, errs
}

// =============================================================================

// latestBlock returns the last block. The caller must hold the lock.
func (db *Database) latestBlock() (BlockData, error) {
	if len(db.blocks) == 0 {
		return BlockData{}, ErrEmptyLedger
	}

	return db.blocks[len(db.blocks)-1], nil
}

// nextDifficulty compares the time between the last two blocks to the block
// interval. Fast blocks make the next one harder, slow blocks make it easier.
// The caller must hold the lock.
func (db *Database) nextDifficulty() uint {
	if len(db.blocks) <= 1 {
		return uint(db.genesis.StartDifficulty)
	}

	last := db.blocks[len(db.blocks)-1]
	prev := db.blocks[len(db.blocks)-2]

	var gap time.Duration
	if last.TimeStamp > prev.TimeStamp {
		gap = time.Duration(last.TimeStamp-prev.TimeStamp) * time.Second
	}

	if gap < db.genesis.BlockInterval {
		return last.Difficulty + 1
	}

	// Never let the difficulty fall below 1.
	if last.Difficulty <= 1 {
		return 1
	}
	return last.Difficulty - 1
}

// validateHeader performs the chain linkage, proof of work and difficulty
// checks in order, stopping on the first failure. The caller must hold the lock.
func (db *Database) validateHeader(blockData BlockData) error {
	block := blockData.Block

	if block.Height == 0 {
		return reject(ErrMalformedBlock, block.Height, "height must be 1 or greater")
	}

	// Genesis bypasses the linkage rules, but there can only be one.
	if block.Height == 1 {
		if len(db.blocks) > 0 {
			return reject(ErrChainLinkage, block.Height, "genesis block already exists")
		}
		if block.PrevHash != GenesisPrevHash {
			return reject(ErrMalformedBlock, block.Height, "genesis previous hash is %q, exp %q", block.PrevHash, GenesisPrevHash)
		}
		if len(block.Trans) != 0 {
			return reject(ErrMalformedBlock, block.Height, "genesis carries %d transactions, exp none", len(block.Trans))
		}
		if exp := uint(db.genesis.StartDifficulty); block.Difficulty != exp {
			return reject(ErrMalformedBlock, block.Height, "genesis difficulty is %d, exp %d", block.Difficulty, exp)
		}
		return nil
	}

	latest, err := db.latestBlock()
	if err != nil {
		return reject(ErrChainLinkage, block.Height, "ledger is empty, expected height 1")
	}

	db.evHandler("database: validate: blk[%d]: check: block height is the next height", block.Height)

	if block.Height != latest.Height+1 {
		return reject(ErrChainLinkage, block.Height, "expected height %d", latest.Height+1)
	}

	db.evHandler("database: validate: blk[%d]: check: previous hash does match latest block", block.Height)

	if block.PrevHash != latest.Hash {
		return reject(ErrChainLinkage, block.Height, "previous hash is %s, exp %s", block.PrevHash, latest.Hash)
	}

	db.evHandler("database: validate: blk[%d]: check: block hash has been solved", block.Height)

	if !IsHashSolved(block.Difficulty, blockData.Hash) {
		return reject(ErrProofOfWork, block.Height, "hash %s is not below target %s", blockData.Hash, TargetHex(block.Difficulty))
	}

	db.evHandler("database: validate: blk[%d]: check: difficulty is the required difficulty", block.Height)

	if exp := db.nextDifficulty(); block.Difficulty != exp {
		return reject(ErrDifficultyMismatch, block.Height, "difficulty is %d, exp %d", block.Difficulty, exp)
	}

	return nil
}

// stageTransactions validates every transaction in order against a scratch
// copy of the balances. Only the accounts touched by the block are staged.
// The caller must hold the lock.
func (db *Database) stageTransactions(block Block) (map[string]uint64, error) {
	staged := make(map[string]uint64)

	var coinbase int
	for _, tx := range block.Trans {
		if err := db.verifyTx(block.Height, tx); err != nil {
			return nil, err
		}

		if !tx.IsCoinbase() {
			if err := db.stageTransfer(staged, block.Height, tx); err != nil {
				return nil, err
			}
			continue
		}

		coinbase++
		if coinbase > 1 {
			return nil, reject(ErrCoinbaseViolation, block.Height, "more than one coinbase transaction")
		}

		if tx.Amount != db.genesis.MiningReward {
			return nil, reject(ErrCoinbaseViolation, block.Height, "coinbase amount %d, exp %d", tx.Amount, db.genesis.MiningReward)
		}

		to, _ := db.stagedBalance(staged, tx.To)
		staged[tx.To] = to + tx.Amount
	}

	// Every mined block pays exactly one reward.
	if block.Height > 1 && coinbase == 0 {
		return nil, reject(ErrCoinbaseViolation, block.Height, "missing coinbase transaction")
	}

	return staged, nil
}

// verifyTx checks the signature of the transaction. A signature that does not
// verify is a rejection, unusable key material is an identity failure.
func (db *Database) verifyTx(height uint64, tx Tx) error {
	ok, err := tx.VerifySignature()
	if err != nil {
		if errors.Is(err, signature.ErrIdentity) {
			return fmt.Errorf("height %d: tx[%s]: %w", height, tx, err)
		}
		return err
	}

	if !ok {
		return reject(ErrSignatureInvalid, height, "tx[%s] signature does not verify", tx)
	}

	return nil
}

// stageTransfer debits the sender and credits the recipient in the staged
// balances. The sender must be known with enough funds.
func (db *Database) stageTransfer(staged map[string]uint64, height uint64, tx Tx) error {
	from, exists := db.stagedBalance(staged, tx.From)
	if !exists || from < tx.Amount {
		return reject(ErrDoubleSpend, height, "tx[%s] insufficient funds, bal %d, needed %d", tx, from, tx.Amount)
	}
	staged[tx.From] = from - tx.Amount

	to, _ := db.stagedBalance(staged, tx.To)
	staged[tx.To] = to + tx.Amount

	return nil
}

// stagedBalance returns the balance from the staged changes if the account
// was touched, otherwise from the committed balances.
func (db *Database) stagedBalance(staged map[string]uint64, address string) (uint64, bool) {
	if balance, exists := staged[address]; exists {
		return balance, true
	}

	balance, exists := db.balances[address]
	return balance, exists
}
