// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sync"

	"github.com/powledger/node/foundation/blockchain/database"
)

// Mempool represents a cache of pending transactions held in the order they
// were accepted. Identical transactions may be held more than once.
type Mempool struct {
	pool []database.Tx
	mu   sync.RWMutex
}

// New constructs a new empty mempool.
func New() *Mempool {
	return &Mempool{}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add appends a transaction to the end of the mempool and returns the
// new size of the pool.
func (mp *Mempool) Add(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = append(mp.pool, tx)

	return len(mp.pool)
}

// Copy returns a copy of the pool in acceptance order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, len(mp.pool))
	copy(txs, mp.pool)
	return txs
}

// PickFirst returns up to howMany transactions from the front of the pool.
// A value of -1 returns all of them.
func (mp *Mempool) PickFirst(howMany int) []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany < 0 || howMany > len(mp.pool) {
		howMany = len(mp.pool)
	}

	txs := make([]database.Tx, howMany)
	copy(txs, mp.pool[:howMany])
	return txs
}

// Delete removes the first occurrence of each of the specified transactions
// and returns how many were removed. A transaction listed twice removes two
// occurrences.
func (mp *Mempool) Delete(txs ...database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, tx := range txs {
		for i := range mp.pool {
			if mp.pool[i].Equals(tx) {
				mp.pool = append(mp.pool[:i], mp.pool[i+1:]...)
				removed++
				break
			}
		}
	}

	return removed
}

// Replace swaps the content of the pool with the specified transactions.
func (mp *Mempool) Replace(txs []database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = append([]database.Tx{}, txs...)
}
