// Package memory implements the ability to read and write blocks to an
// in-memory store. It exists for tests and for validating a candidate chain
// received from a peer without touching the node's own storage.
package memory

import (
	"errors"
	"sync"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// Memory represents the storage implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	return &Memory{}, nil
}

// NewWithBlocks constructs a Memory value pre-loaded with the specified
// blocks in chain order.
func NewWithBlocks(blocks []database.BlockData) (*Memory, error) {
	return &Memory{blocks: blocks}, nil
}

// Close in this implementation has nothing to do.
func (m *Memory) Close() error {
	return nil
}

// Write appends the specified block to the in-memory chain.
func (m *Memory) Write(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = append(m.blocks, blockData)
	return nil
}

// GetBlock returns the specified block by number from the in-memory chain.
func (m *Memory) GetBlock(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num == 0 || num > uint64(len(m.blocks)) {
		return database.BlockData{}, errors.New("block does not exist")
	}

	return m.blocks[num-1], nil
}

// ForEach returns an iterator to walk the blockchain from genesis forward.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m}
}

// Reset will clear out the in-memory blockchain.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through the in-memory blocks. This implements the database.Iterator
// interface.
type memoryIterator struct {
	storage *Memory // Access to the Memory storage API.
	current uint64  // Currently read block number.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from memory.
func (mi *memoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	mi.current++
	blockData, err := mi.storage.GetBlock(mi.current)
	if err != nil {
		mi.eoc = true
		return database.BlockData{}, nil
	}

	return blockData, nil
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
