package state

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/powledger/node/foundation/blockchain/database"
)

// ErrUnknownKey is returned when the node is asked to spend from an account
// it doesn't hold the private key for.
var ErrUnknownKey = errors.New("no private key held for account")

// SubmitTransaction creates, signs and accepts a transaction from an account
// whose key is held by the node. An empty from address spends from the
// miner account.
func (s *State) SubmitTransaction(from string, to string, amount uint64) (database.Tx, error) {
	privateKey := s.minerKey
	if from != "" && from != s.minerAddress {
		pk, exists := s.lookupKey(from)
		if !exists {
			return database.Tx{}, fmt.Errorf("%s: %w", from, ErrUnknownKey)
		}
		privateKey = pk
	}

	tx, err := database.NewTx(s.addressOf(from), to, amount).Sign(privateKey)
	if err != nil {
		return database.Tx{}, err
	}

	if err := s.SubmitSignedTransaction(tx); err != nil {
		return database.Tx{}, err
	}

	return tx, nil
}

// SubmitSignedTransaction accepts a transaction signed by a wallet for
// inclusion. The transaction must be spendable on top of the committed
// balances and every transaction already pending.
func (s *State) SubmitSignedTransaction(tx database.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, _ := s.db.ValidatePending(s.mempool.Copy())

	_, errs := s.db.ValidatePending(append(pending, tx))
	if len(errs) > 0 {
		txRejected.Inc()
		s.evHandler("state: SubmitSignedTransaction: REJECTED: tx[%s]: %s", tx, errs[0])
		return errs[0]
	}

	n := s.mempool.Add(tx)
	mempoolSize.Set(float64(n))
	txAccepted.Inc()

	s.evHandler("state: SubmitSignedTransaction: tx[%s] added to mempool: pending[%d]", tx, n)

	return nil
}

// =============================================================================

// lookupKey finds the private key for an address in the key store.
func (s *State) lookupKey(address string) (*ecdsa.PrivateKey, bool) {
	if s.keyStore == nil {
		return nil, false
	}
	return s.keyStore.PrivateKey(address)
}

// addressOf resolves the empty address to the miner account.
func (s *State) addressOf(address string) string {
	if address == "" {
		return s.minerAddress
	}
	return address
}
