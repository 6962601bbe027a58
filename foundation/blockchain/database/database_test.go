package database_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Set of private keys used by the tests.
const (
	minerHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
	aHexKey     = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	bHexKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cHexKey     = "ae6ae8e5ccbfb04590405997ee2d52d2b330726137b875053c36d94e974d162f"
)

// genesisTime is the timestamp of the genesis block in every test chain.
const genesisTime = 1505346600

// =============================================================================

func Test_TransactionSignature(t *testing.T) {
	t.Log("Given the need to sign and verify transactions.")
	{
		a := key(t, aHexKey)
		b := key(t, bHexKey)

		tx, err := database.NewTx(address(a), address(b), 5).Sign(a)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the transaction.", success)

		unsigned := database.NewTx(address(a), address(b), 5)
		if unsigned.DigestHex() != tx.DigestHex() {
			t.Fatalf("\t%s\tShould exclude the signature from the digest.", failed)
		}
		t.Logf("\t%s\tShould exclude the signature from the digest.", success)

		if ok, err := tx.VerifySignature(); err != nil || !ok {
			t.Fatalf("\t%s\tShould verify the signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould verify the signature.", success)

		tampered := tx
		tampered.Amount = 50
		if ok, _ := tampered.VerifySignature(); ok {
			t.Fatalf("\t%s\tShould not verify a tampered transaction.", failed)
		}
		t.Logf("\t%s\tShould not verify a tampered transaction.", success)

		if ok, _ := unsigned.VerifySignature(); ok {
			t.Fatalf("\t%s\tShould not verify an unsigned transaction.", failed)
		}
		t.Logf("\t%s\tShould not verify an unsigned transaction.", success)

		if _, err := database.NewTx(address(a), address(b), 5).Sign(b); err == nil {
			t.Fatalf("\t%s\tShould not sign with a key that isn't the sender's.", failed)
		}
		t.Logf("\t%s\tShould not sign with a key that isn't the sender's.", success)

		coinbase, err := database.NewCoinbaseTx(b, 10)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a coinbase: %v", failed, err)
		}
		if ok, err := coinbase.VerifySignature(); err != nil || !ok {
			t.Fatalf("\t%s\tShould verify a coinbase against the recipient: %v", failed, err)
		}
		t.Logf("\t%s\tShould verify a coinbase against the recipient.", success)
	}
}

func Test_Target(t *testing.T) {
	t.Log("Given the need to convert difficulty into a target.")
	{
		tt := []struct {
			difficulty uint
			exp        string
		}{
			{0, "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
			{4, "0fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
			{10, "003fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
		}

		for _, tst := range tt {
			got := database.TargetHex(tst.difficulty)
			if got != tst.exp {
				t.Logf("\t\tgot: %s", got)
				t.Logf("\t\texp: %s", tst.exp)
				t.Fatalf("\t%s\tShould get the right target for difficulty %d.", failed, tst.difficulty)
			}
			t.Logf("\t%s\tShould get the right target for difficulty %d.", success, tst.difficulty)
		}

		if !database.IsHashSolved(10, "003ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffe") {
			t.Fatalf("\t%s\tShould accept a hash just below the target.", failed)
		}
		if database.IsHashSolved(10, "003fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff") {
			t.Fatalf("\t%s\tShould reject a hash equal to the target.", failed)
		}
		if database.IsHashSolved(10, "3f") {
			t.Fatalf("\t%s\tShould reject a hash that isn't 64 characters.", failed)
		}
		t.Logf("\t%s\tShould compare hashes against the target as integers.", success)
	}
}

func Test_Scenario(t *testing.T) {
	t.Log("Given a chain where A owns a previous coinbase.")
	{
		a := key(t, aHexKey)
		b := key(t, bHexKey)
		c := key(t, cHexKey)
		miner := key(t, minerHexKey)

		db := newChain(t, 10)
		addBlock(t, db, a, genesisTime+1, nil)

		t.Log("\tWhen mining A->B:5 and B->C:2 into the next block.")
		{
			txs := []database.Tx{
				sign(t, a, address(b), 5),
				sign(t, b, address(c), 2),
			}
			blockData := addBlock(t, db, miner, genesisTime+2, txs)

			if !database.IsHashSolved(blockData.Difficulty, blockData.Hash) {
				t.Fatalf("\t%s\tShould produce a hash below the target.", failed)
			}
			t.Logf("\t%s\tShould produce a hash below the target.", success)

			exp := map[string]uint64{
				address(a):     5,
				address(b):     3,
				address(c):     2,
				address(miner): 10,
			}
			checkBalances(t, db.Balances(), exp)
		}
	}
}

func Test_AddBlockRejections(t *testing.T) {
	a := key(t, aHexKey)
	b := key(t, bHexKey)
	miner := key(t, minerHexKey)

	type table struct {
		name  string
		kind  error
		build func(db *database.Database) database.Block
	}

	tt := []table{
		{
			name: "height",
			kind: database.ErrChainLinkage,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				blk.Height++
				return solve(blk)
			},
		},
		{
			name: "prevhash",
			kind: database.ErrChainLinkage,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				blk.PrevHash = "0"
				return solve(blk)
			},
		},
		{
			name: "pow",
			kind: database.ErrProofOfWork,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				for {
					if !database.IsHashSolved(blk.Difficulty, blk.Hash()) {
						return blk
					}
					blk.Nonce++
				}
			},
		},
		{
			name: "difficulty",
			kind: database.ErrDifficultyMismatch,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				blk.Difficulty = 1
				return solve(blk)
			},
		},
		{
			name: "twocoinbase",
			kind: database.ErrCoinbaseViolation,
			build: func(db *database.Database) database.Block {
				extra, err := database.NewCoinbaseTx(b, 10)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to create a coinbase: %v", failed, err)
				}
				return solve(candidate(t, db, miner, genesisTime+10, []database.Tx{extra}))
			},
		},
		{
			name: "coinbaseamount",
			kind: database.ErrCoinbaseViolation,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				cb, err := database.NewTx(database.Coinbase, address(miner), 1000).Sign(miner)
				if err != nil {
					t.Fatalf("\t%s\tShould be able to sign a coinbase: %v", failed, err)
				}
				blk.Trans = []database.Tx{cb}
				return solve(blk)
			},
		},
		{
			name: "nocoinbase",
			kind: database.ErrCoinbaseViolation,
			build: func(db *database.Database) database.Block {
				blk := candidate(t, db, miner, genesisTime+10, nil)
				blk.Trans = nil
				return solve(blk)
			},
		},
		{
			name: "overspend",
			kind: database.ErrDoubleSpend,
			build: func(db *database.Database) database.Block {
				txs := []database.Tx{
					sign(t, a, address(b), 4),
					sign(t, a, address(b), 7),
				}
				return solve(candidate(t, db, miner, genesisTime+10, txs))
			},
		},
		{
			name: "unknownsender",
			kind: database.ErrDoubleSpend,
			build: func(db *database.Database) database.Block {
				txs := []database.Tx{sign(t, b, address(a), 1)}
				return solve(candidate(t, db, miner, genesisTime+10, txs))
			},
		},
		{
			name: "signature",
			kind: database.ErrSignatureInvalid,
			build: func(db *database.Database) database.Block {
				tx := sign(t, a, address(b), 4)
				tx.Amount = 5
				return solve(candidate(t, db, miner, genesisTime+10, []database.Tx{tx}))
			},
		},
	}

	t.Log("Given the need to reject invalid blocks without changing the ledger.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s violation.", testID, tst.name)

				db := newChain(t, 4)
				addBlock(t, db, a, genesisTime+1, nil)

				before := db.Balances()
				length := db.Length()

				blk := tst.build(db)
				_, err := db.AddBlock(blk)
				if !errors.Is(err, tst.kind) {
					t.Logf("\t\tgot: %v", err)
					t.Logf("\t\texp: %v", tst.kind)
					t.Fatalf("\t%s\tTest %d:\tShould reject the block with the right kind.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould reject the block with the right kind.", success, testID)

				re := database.GetRejection(err)
				if re == nil || re.Kind != tst.kind || re.Height != blk.Height {
					t.Fatalf("\t%s\tTest %d:\tShould report a rejection for height %d: %v", failed, testID, blk.Height, err)
				}

				if db.Length() != length {
					t.Fatalf("\t%s\tTest %d:\tShould not append the block.", failed, testID)
				}
				checkBalances(t, db.Balances(), before)
				t.Logf("\t%s\tTest %d:\tShould leave the ledger unchanged.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a chain from a genesis block.")
	{
		db := database.New(testGenesis(10), nil)

		if _, err := db.LatestBlock(); !errors.Is(err, database.ErrEmptyLedger) {
			t.Fatalf("\t%s\tShould report an empty ledger: %v", failed, err)
		}
		t.Logf("\t%s\tShould report an empty ledger.", success)

		if db.NextDifficulty() != 10 {
			t.Fatalf("\t%s\tShould use the start difficulty for the first block.", failed)
		}
		t.Logf("\t%s\tShould use the start difficulty for the first block.", success)

		bad := database.NewGenesisBlock(10, genesisTime)
		bad.PrevHash = "abc"
		if _, err := db.AddBlock(bad); !errors.Is(err, database.ErrMalformedBlock) {
			t.Fatalf("\t%s\tShould reject a genesis with a previous hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a genesis with a previous hash.", success)

		minted := database.NewGenesisBlock(10, genesisTime)
		coinbase, err := database.NewCoinbaseTx(key(t, aHexKey), 10)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create a coinbase: %v", failed, err)
		}
		minted.Trans = []database.Tx{coinbase}
		if _, err := db.AddBlock(minted); !errors.Is(err, database.ErrMalformedBlock) {
			t.Fatalf("\t%s\tShould reject a genesis with transactions: %v", failed, err)
		}
		if len(db.Balances()) != 0 {
			t.Fatalf("\t%s\tShould not credit any account from a rejected genesis.", failed)
		}
		t.Logf("\t%s\tShould reject a genesis with transactions.", success)

		if _, err := db.AddBlock(database.NewGenesisBlock(200, genesisTime)); !errors.Is(err, database.ErrMalformedBlock) {
			t.Fatalf("\t%s\tShould reject a genesis with the wrong difficulty: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a genesis with the wrong difficulty.", success)

		if _, err := db.AddBlock(database.NewGenesisBlock(10, genesisTime)); err != nil {
			t.Fatalf("\t%s\tShould accept the genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the genesis block.", success)

		if _, err := db.AddBlock(database.NewGenesisBlock(10, genesisTime+1)); !errors.Is(err, database.ErrChainLinkage) {
			t.Fatalf("\t%s\tShould reject a second genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a second genesis block.", success)
	}
}

func Test_NextDifficulty(t *testing.T) {
	miner := key(t, minerHexKey)

	t.Log("Given the need to retarget the difficulty from block times.")
	{
		db := newChain(t, 3)

		if d := db.NextDifficulty(); d != 3 {
			t.Fatalf("\t%s\tShould use the start difficulty with only genesis, got %d.", failed, d)
		}

		// Genesis to block 2 is fast, so block 3 is harder.
		addBlock(t, db, miner, genesisTime+1, nil)
		if d := db.NextDifficulty(); d != 4 {
			t.Fatalf("\t%s\tShould increase after a fast block, got %d.", failed, d)
		}
		t.Logf("\t%s\tShould increase after a fast block.", success)

		// Block 2 to block 3 is exactly the interval, so block 4 is easier.
		addBlock(t, db, miner, genesisTime+1+5, nil)
		if d := db.NextDifficulty(); d != 3 {
			t.Fatalf("\t%s\tShould decrease after a slow block, got %d.", failed, d)
		}
		t.Logf("\t%s\tShould decrease after a slow block.", success)

		addBlock(t, db, miner, genesisTime+100, nil)
		addBlock(t, db, miner, genesisTime+200, nil)
		addBlock(t, db, miner, genesisTime+300, nil)
		addBlock(t, db, miner, genesisTime+400, nil)
		if d := db.NextDifficulty(); d != 1 {
			t.Fatalf("\t%s\tShould never go below 1, got %d.", failed, d)
		}
		t.Logf("\t%s\tShould never go below 1.", success)
	}
}

func Test_Replay(t *testing.T) {
	a := key(t, aHexKey)
	b := key(t, bHexKey)
	c := key(t, cHexKey)
	miner := key(t, minerHexKey)

	t.Log("Given the need to rebuild balances from the blocks alone.")
	{
		db := newChain(t, 4)
		addBlock(t, db, a, genesisTime+1, nil)
		addBlock(t, db, b, genesisTime+2, []database.Tx{sign(t, a, address(c), 3)})
		addBlock(t, db, miner, genesisTime+9, []database.Tx{sign(t, b, address(a), 7), sign(t, c, address(b), 1)})

		dump := db.Blocks()
		blocks := make([]database.Block, len(dump))
		for i, bd := range dump {
			blocks[i] = database.ToBlock(bd)
		}

		replayed, err := database.Replay(testGenesis(4), blocks, nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to replay the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to replay the chain.", success)

		checkBalances(t, replayed.Balances(), db.Balances())
		checkBalances(t, accumulate(blocks), db.Balances())
		t.Logf("\t%s\tShould reproduce the balances with an independent accumulation.", success)

		for i := 1; i < len(dump); i++ {
			if dump[i].PrevHash != dump[i-1].Hash || dump[i].Height != dump[i-1].Height+1 {
				t.Fatalf("\t%s\tShould link block %d to its parent.", failed, dump[i].Height)
			}
			if !database.IsHashSolved(dump[i].Difficulty, dump[i].Hash) {
				t.Fatalf("\t%s\tShould have solved block %d.", failed, dump[i].Height)
			}
		}
		t.Logf("\t%s\tShould hold a linked and solved chain.", success)

		tampered := append([]database.Block{}, blocks...)
		tampered[2].Trans = append([]database.Tx{}, blocks[2].Trans...)
		tampered[2].Trans[0].Amount = 4
		if _, err := database.Replay(testGenesis(4), tampered, nil); err == nil {
			t.Fatalf("\t%s\tShould fail to replay a tampered chain.", failed)
		}
		t.Logf("\t%s\tShould fail to replay a tampered chain.", success)
	}
}

func Test_AcceptedBlocksImmutable(t *testing.T) {
	a := key(t, aHexKey)
	b := key(t, bHexKey)

	t.Log("Given the need to keep accepted blocks unchanged.")
	{
		db := newChain(t, 4)
		addBlock(t, db, a, genesisTime+1, nil)

		blk := solve(candidate(t, db, b, genesisTime+2, []database.Tx{sign(t, a, address(b), 3)}))
		if _, err := db.AddBlock(blk); err != nil {
			t.Fatalf("\t%s\tShould be able to add block: %v", failed, err)
		}
		before := db.Blocks()

		t.Log("\tWhen the caller changes the block it handed in.")
		{
			blk.Trans[0].Amount = 999
			blk.Trans[0].Signature[0]++

			checkChain(t, db, before)
		}

		t.Log("\tWhen the caller changes a chain dump.")
		{
			dump := db.Blocks()
			dump[2].Trans[0].Amount = 999
			dump[2].Trans[1].Signature[0]++

			checkChain(t, db, before)
		}

		t.Log("\tWhen the caller changes the latest block.")
		{
			latest, err := db.LatestBlock()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to get the latest block: %v", failed, err)
			}
			latest.Trans[0].Amount = 999

			checkChain(t, db, before)
		}
	}
}

func Test_ValidatePending(t *testing.T) {
	a := key(t, aHexKey)
	b := key(t, bHexKey)
	c := key(t, cHexKey)

	t.Log("Given the need to validate pending transactions in order.")
	{
		db := newChain(t, 4)
		addBlock(t, db, a, genesisTime+1, nil)

		pending := []database.Tx{
			sign(t, a, address(b), 5),
			sign(t, b, address(c), 2),
			sign(t, a, address(c), 6),
		}

		valid, errs := db.ValidatePending(pending)
		if len(valid) != 2 || len(errs) != 1 {
			t.Fatalf("\t%s\tShould keep 2 and drop 1, got %d and %d.", failed, len(valid), len(errs))
		}
		if !errors.Is(errs[0], database.ErrDoubleSpend) {
			t.Fatalf("\t%s\tShould drop the overspend: %v", failed, errs[0])
		}
		t.Logf("\t%s\tShould keep spendable transactions and drop the overspend.", success)
	}
}

// =============================================================================

func testGenesis(difficulty uint16) genesis.Genesis {
	return genesis.Genesis{
		StartDifficulty: difficulty,
		BlockInterval:   5 * time.Second,
		MiningReward:    10,
	}
}

func key(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load private key: %v", failed, err)
	}
	return pk
}

func address(pk *ecdsa.PrivateKey) string {
	return signature.Address(pk.PublicKey)
}

func sign(t *testing.T, from *ecdsa.PrivateKey, to string, amount uint64) database.Tx {
	tx, err := database.NewTx(address(from), to, amount).Sign(from)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %v", failed, err)
	}
	return tx
}

func newChain(t *testing.T, difficulty uint16) *database.Database {
	db := database.New(testGenesis(difficulty), nil)
	if _, err := db.AddBlock(database.NewGenesisBlock(uint(difficulty), genesisTime)); err != nil {
		t.Fatalf("\t%s\tShould be able to add genesis: %v", failed, err)
	}
	return db
}

// candidate assembles the next block with a coinbase for the miner appended.
func candidate(t *testing.T, db *database.Database, miner *ecdsa.PrivateKey, timeStamp uint64, txs []database.Tx) database.Block {
	latest, err := db.LatestBlock()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to get the latest block: %v", failed, err)
	}

	coinbase, err := database.NewCoinbaseTx(miner, db.Genesis().MiningReward)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to create a coinbase: %v", failed, err)
	}

	return database.Block{
		Height:     latest.Height + 1,
		Difficulty: db.NextDifficulty(),
		PrevHash:   latest.Hash,
		TimeStamp:  timeStamp,
		Trans:      append(append([]database.Tx{}, txs...), coinbase),
	}
}

// solve searches the nonce keeping the timestamp fixed.
func solve(blk database.Block) database.Block {
	for !database.IsHashSolved(blk.Difficulty, blk.Hash()) {
		blk.Nonce++
	}
	return blk
}

func addBlock(t *testing.T, db *database.Database, miner *ecdsa.PrivateKey, timeStamp uint64, txs []database.Tx) database.BlockData {
	blockData, err := db.AddBlock(solve(candidate(t, db, miner, timeStamp, txs)))
	if err != nil {
		t.Fatalf("\t%s\tShould be able to add block: %v", failed, err)
	}
	return blockData
}

// accumulate replays the transactions of the blocks without any validation.
func accumulate(blocks []database.Block) map[string]uint64 {
	balances := make(map[string]uint64)
	for _, blk := range blocks {
		for _, tx := range blk.Trans {
			if !tx.IsCoinbase() {
				balances[tx.From] -= tx.Amount
			}
			balances[tx.To] += tx.Amount
		}
	}
	return balances
}

// checkChain verifies every block still hashes to its memoized hash and
// carries the same transactions as the snapshot.
func checkChain(t *testing.T, db *database.Database, exp []database.BlockData) {
	got := db.Blocks()
	if len(got) != len(exp) {
		t.Fatalf("\t%s\tShould have %d blocks, got %d.", failed, len(exp), len(got))
	}

	for i := range got {
		if got[i].Hash != got[i].Block.Hash() || got[i].Hash != exp[i].Hash {
			t.Fatalf("\t%s\tShould not change block %d.", failed, got[i].Height)
		}
		for j := range got[i].Trans {
			if !got[i].Trans[j].Equals(exp[i].Trans[j]) {
				t.Fatalf("\t%s\tShould not change transaction %d of block %d.", failed, j, got[i].Height)
			}
		}
	}
	t.Logf("\t%s\tShould not change the accepted blocks.", success)
}

func checkBalances(t *testing.T, got map[string]uint64, exp map[string]uint64) {
	if len(got) != len(exp) {
		t.Fatalf("\t%s\tShould have %d accounts, got %d.", failed, len(exp), len(got))
	}

	for account, balance := range exp {
		if got[account] != balance {
			t.Logf("\t\tgot: %d", got[account])
			t.Logf("\t\texp: %d", balance)
			t.Fatalf("\t%s\tShould have the right balance for %s.", failed, account)
		}
	}
	t.Logf("\t%s\tShould have the right balances.", success)
}
