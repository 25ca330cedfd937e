// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sync"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// Mempool represents a cache of transactions organized in the order they
// were received. Each transaction is keyed by its unique id so the same
// transaction arriving from several peers is stored once.
type Mempool struct {
	mu    sync.RWMutex
	pool  map[string]database.BlockTx
	order []string
}

// New constructs a new mempool for use.
func New() (*Mempool, error) {
	mp := Mempool{
		pool: make(map[string]database.BlockTx),
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool and reports whether
// the transaction was not already present.
func (mp *Mempool) Upsert(tx database.BlockTx) (bool, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		mp.pool[tx.ID] = tx
		return false, nil
	}

	mp.pool[tx.ID] = tx
	mp.order = append(mp.order, tx.ID)

	return true, nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(tx.ID)

	return nil
}

// DeleteAll removes the specified transactions from the mempool. It is used
// after a block is adopted to drop the transactions the block settled.
func (mp *Mempool) DeleteAll(txs []database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		mp.remove(tx.ID)
	}
}

// Truncate clears all the transactions from the mempool.
func (mp *Mempool) Truncate() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
	mp.order = nil

	return nil
}

// PickBest returns the oldest transactions from the mempool up to the
// specified number. The transactions remain in the pool until the block
// that carries them is adopted, so a cancelled mining run loses nothing.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany > len(mp.order) {
		howMany = len(mp.order)
	}

	txs := make([]database.BlockTx, 0, howMany)
	for _, id := range mp.order[:howMany] {
		txs = append(txs, mp.pool[id])
	}

	return txs
}

// remove drops the transaction with the specified id. The caller must hold
// the write lock.
func (mp *Mempool) remove(id string) {
	if _, exists := mp.pool[id]; !exists {
		return
	}

	delete(mp.pool, id)
	for i, orderedID := range mp.order {
		if orderedID == id {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}
}
