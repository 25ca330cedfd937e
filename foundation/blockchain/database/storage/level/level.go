// Package level implements the ability to read and write blocks to storage
// using LevelDB. It packs the whole chain into a single key/value store
// instead of a file per block.
package level

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// Level represents the storage implementation for reading and storing
// blocks inside LevelDB. This implements the database.Storage interface.
type Level struct {
	db *leveldb.DB
}

// New constructs a Level value for use, opening the store at the specified
// path.
func New(dbPath string) (*Level, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}

	return &Level{db: db}, nil
}

// Close releases the underlying LevelDB handle.
func (l *Level) Close() error {
	return l.db.Close()
}

// Write stores the specified block keyed by its block number.
func (l *Level) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return l.db.Put(blockKey(blockData.Header.Number), data, nil)
}

// GetBlock returns the specified block by number.
func (l *Level) GetBlock(num uint64) (database.BlockData, error) {
	data, err := l.db.Get(blockKey(num), nil)
	if err != nil {
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// ForEach returns an iterator to walk the blockchain from genesis forward.
func (l *Level) ForEach() database.Iterator {
	return &levelIterator{storage: l}
}

// Reset will clear out the blockchain from the store.
func (l *Level) Reset() error {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(batch, nil)
}

// blockKey encodes a block number as a big endian key so the natural
// LevelDB key order matches the chain order.
func blockKey(num uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, num)
	return key
}

// =============================================================================

// levelIterator represents the iteration implementation for walking
// through the blocks in the store. This implements the database.Iterator
// interface.
type levelIterator struct {
	storage *Level // Access to the Level storage API.
	current uint64 // Currently read block number.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the store.
func (li *levelIterator) Next() (database.BlockData, error) {
	if li.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	li.current++
	blockData, err := li.storage.GetBlock(li.current)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			li.eoc = true
			return database.BlockData{}, nil
		}
		return database.BlockData{}, err
	}

	return blockData, nil
}

// Done returns the end of chain value.
func (li *levelIterator) Done() bool {
	return li.eoc
}
