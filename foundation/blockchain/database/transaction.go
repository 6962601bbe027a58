package database

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// Coinbase is the from address of the transaction paying the mining reward.
const Coinbase = "COINBASE"

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	From      string        `json:"from"`      // Address of the sender or Coinbase for the block reward.
	To        string        `json:"to"`        // Address of the account receiving the value.
	Amount    uint64        `json:"amount"`    // Monetary value moved by this transaction.
	Signature hexutil.Bytes `json:"signature"` // Signature over the digest, empty until signed.
}

// NewTx constructs a new unsigned transaction.
func NewTx(from string, to string, amount uint64) Tx {
	return Tx{
		From:   from,
		To:     to,
		Amount: amount,
	}
}

// NewCoinbaseTx constructs the reward transaction for the specified miner
// and signs it with the miner's key.
func NewCoinbaseTx(minerKey *ecdsa.PrivateKey, reward uint64) (Tx, error) {
	tx := NewTx(Coinbase, signature.Address(minerKey.PublicKey), reward)
	return tx.Sign(minerKey)
}

// IsCoinbase reports if this transaction pays the block reward.
func (tx Tx) IsCoinbase() bool {
	return tx.From == Coinbase
}

// Digest returns the SHA-256 of the canonical encoding of the transaction.
// The signature is not part of the digest since the digest is what's signed.
func (tx Tx) Digest() []byte {

	// The canonical form is the RLP list [from, to, amount]. RLP has a single
	// valid encoding for any list, so the digest is stable across nodes.
	data, err := rlp.EncodeToBytes([]any{tx.From, tx.To, tx.Amount})
	if err != nil {
		panic(fmt.Sprintf("rlp encoding of strings and integers failed: %s", err))
	}

	hash := sha256.Sum256(data)
	return hash[:]
}

// DigestHex returns the digest as a hex string.
func (tx Tx) DigestHex() string {
	return hex.EncodeToString(tx.Digest())
}

// Sign uses the specified private key to sign the transaction. The key must
// belong to the signer address of the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	if signature.Address(privateKey.PublicKey) != tx.signer() {
		return Tx{}, fmt.Errorf("private key does not belong to signer %s", tx.signer())
	}

	sig, err := signature.Sign(tx.Digest(), privateKey)
	if err != nil {
		return Tx{}, err
	}

	tx.Signature = sig

	return tx, nil
}

// VerifySignature checks the signature against the signer of the transaction.
// A missing or malformed signature returns false. An error is returned when
// the signer address isn't usable key material.
func (tx Tx) VerifySignature() (bool, error) {
	return signature.Verify(tx.signer(), tx.Digest(), tx.Signature)
}

// Equals reports if the two transactions are the same signed transaction.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.From == otherTx.From &&
		tx.To == otherTx.To &&
		tx.Amount == otherTx.Amount &&
		bytes.Equal(tx.Signature, otherTx.Signature)
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s->%s:%d", short(tx.From), short(tx.To), tx.Amount)
}

// signer returns the address whose key must have produced the signature.
func (tx Tx) signer() string {
	if tx.IsCoinbase() {
		return tx.To
	}
	return tx.From
}

// short trims long addresses for log output.
func short(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:12]
}
