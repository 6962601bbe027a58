package database

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// GenesisPrevHash is the previous hash carried by the genesis block.
const GenesisPrevHash = "0"

// =============================================================================

// Block represents a group of transactions batched together.
type Block struct {
	Height     uint64 `json:"height"`        // Position in the chain, genesis is 1.
	Difficulty uint   `json:"difficulty"`    // Number of leading bits removed from the maximum target.
	PrevHash   string `json:"previous_hash"` // Hash of the previous block in the chain.
	TimeStamp  uint64 `json:"timestamp"`     // Unix seconds the block was finalized.
	Nonce      uint64 `json:"nonce"`         // Value identified to solve the hash solution.
	Trans      []Tx   `json:"transactions"`  // Ordered transactions, order is part of the hash.
}

// NewGenesisBlock constructs the first block of a chain.
func NewGenesisBlock(difficulty uint, timeStamp uint64) Block {
	return Block{
		Height:     1,
		Difficulty: difficulty,
		PrevHash:   GenesisPrevHash,
		TimeStamp:  timeStamp,
		Trans:      []Tx{},
	}
}

// Hash returns the unique hash for the Block. The hash is a pure function of
// the current field values and must be recomputed after any change.
func (b Block) Hash() string {
	digests := make([]string, len(b.Trans))
	for i, tx := range b.Trans {
		digests[i] = tx.DigestHex()
	}

	// Canonical form is the RLP list in this exact order:
	// [height, difficulty, nonce, previous_hash, tx digests joined by ",", timestamp]
	fields := []any{
		b.Height,
		uint64(b.Difficulty),
		b.Nonce,
		b.PrevHash,
		strings.Join(digests, ","),
		b.TimeStamp,
	}

	data, err := rlp.EncodeToBytes(fields)
	if err != nil {
		panic(fmt.Sprintf("rlp encoding of strings and integers failed: %s", err))
	}

	return signature.Hash(data)
}

// =============================================================================

// TargetFromDifficulty returns (2^256 - 1) >> difficulty. A block hash must be
// strictly below this value.
func TargetFromDifficulty(difficulty uint) *uint256.Int {
	max := new(uint256.Int).SetAllOne()
	return max.Rsh(max, difficulty)
}

// TargetHex renders the target as a fixed width, zero padded 64 character
// hex string for display.
func TargetHex(difficulty uint) string {
	b := TargetFromDifficulty(difficulty).Bytes32()
	return hex.EncodeToString(b[:])
}

// IsHashSolved checks the hash is a 64 character hex string whose value is
// below the target for the difficulty. The comparison is done on the 256 bit
// integer, never on the strings.
func IsHashSolved(difficulty uint, hash string) bool {
	if len(hash) != 64 {
		return false
	}

	b, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}

	value := new(uint256.Int).SetBytes32(b)
	return value.Lt(TargetFromDifficulty(difficulty))
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Block     Block
	Preempted func() bool
	EvHandler func(v string, args ...any)
}

// POW performs the work of finding a nonce that solves the block. The search
// starts at nonce 0 and refreshes the timestamp on every attempt. Before every
// attempt the preemption signal is checked and the search is abandoned with
// ErrPreempted when raised, or with the context error when the context is
// cancelled.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	preempted := args.Preempted
	if preempted == nil {
		preempted = func() bool { return false }
	}

	nb := args.Block
	nb.Nonce = 0

	ev("database: POW: MINING: started: blk[%d]: difficulty[%d]: target[%s]", nb.Height, nb.Difficulty, TargetHex(nb.Difficulty))
	defer ev("database: POW: MINING: completed: blk[%d]", nb.Height)

	var attempts uint64
	for {
		if preempted() {
			ev("database: POW: MINING: PREEMPTED: attempts[%d]", attempts)
			return Block{}, ErrPreempted
		}

		if ctx.Err() != nil {
			ev("database: POW: MINING: CANCELLED: attempts[%d]", attempts)
			return Block{}, ctx.Err()
		}

		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: POW: MINING: attempts[%d]", attempts)
		}

		hash := nb.Hash()
		if IsHashSolved(nb.Difficulty, hash) {
			ev("database: POW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", nb.PrevHash, hash, attempts)
			return nb, nil
		}

		nb.Nonce++
		nb.TimeStamp = uint64(time.Now().UTC().Unix())
	}
}

// =============================================================================

// BlockData represents a block as held by the ledger and exchanged with
// peers. The hash is memoized for accepted blocks but is never trusted on
// input, every consumer recomputes it.
type BlockData struct {
	Hash string `json:"hash"`
	Block
}

// NewBlockData constructs the value held by the ledger for a block.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:  block.Hash(),
		Block: block,
	}
}

// clone returns a copy that shares no memory with the original.
func (bd BlockData) clone() BlockData {
	if bd.Trans == nil {
		return bd
	}

	trans := make([]Tx, len(bd.Trans))
	for i, tx := range bd.Trans {
		tx.Signature = append(hexutil.Bytes(nil), tx.Signature...)
		trans[i] = tx
	}
	bd.Trans = trans

	return bd
}

// ToBlock converts a BlockData into a Block, dropping the untrusted hash.
func ToBlock(blockData BlockData) Block {
	return blockData.Block
}
