// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in-memory view of account
// balances.
package database

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
	"github.com/minicoin/minicoin/foundation/blockchain/signature"
)

// Storage interface represents the behavior required to be implemented by
// any package providing support for reading and writing the blockchain.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// Database manages data related to accounts who have transacted on the
// blockchain.
type Database struct {
	mu          sync.RWMutex
	genesis     genesis.Genesis
	latestBlock Block
	accounts    map[AccountID]Account
	storage     Storage
}

// New constructs a new database and applies any existing blocks found in
// storage. The replay runs the full validation rules, a chain that fails to
// validate fails the construction.
func New(genesis genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:  genesis,
		accounts: make(map[AccountID]Account),
		storage:  storage,
	}

	// Read all the blocks from storage and rebuild the account state.
	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		// Validate the block values and cryptographic audit trail.
		if err := block.ValidateBlock(db.latestBlock, db.HashState(), genesis.Difficulty, evHandler); err != nil {
			return nil, err
		}

		// Update the database with the transaction information.
		for _, tx := range block.Transactions {
			if err := db.ApplyTransaction(tx); err != nil {
				return nil, err
			}
		}
		db.ApplyMiningReward(block)

		// Update the current latest block.
		db.latestBlock = block
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() {
	db.storage.Close()
}

// Reset re-initializes the database back to an empty chain.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.accounts = make(map[AccountID]Account)

	return nil
}

// Remove deletes an account from the database.
func (db *Database) Remove(accountID AccountID) {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.accounts, accountID)
}

// Query retrieves an account from the database.
func (db *Database) Query(accountID AccountID) (Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[accountID]
	if !exists {
		return Account{}, errors.New("account does not exist")
	}

	return account, nil
}

// Balance returns the current balance for the specified account. An account
// the chain has never seen has a balance of zero.
func (db *Database) Balance(accountID AccountID) uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.accounts[accountID].Balance
}

// CopyAccounts makes a copy of the current accounts in the database.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account, len(db.accounts))
	for accountID, account := range db.accounts {
		accounts[accountID] = account
	}

	return accounts
}

// HashState returns a hash based on the current set of account balances.
// The accounts are sorted by id first so two nodes holding the same
// balances always produce the same hash.
func (db *Database) HashState() string {
	accounts := make([]Account, 0, len(db.accounts))

	db.mu.RLock()
	{
		for _, account := range db.accounts {
			accounts = append(accounts, account)
		}
	}
	db.mu.RUnlock()

	sort.Sort(byAccount(accounts))

	return signature.Hash(accounts)
}

// ApplyMiningReward gives the specified account the mining reward. When the
// block is the genesis block, the beneficiary is paid the genesis reward
// and the storage account is funded with its starting balance.
func (db *Database) ApplyMiningReward(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account := db.accounts[block.Header.BeneficiaryID]
	account.AccountID = block.Header.BeneficiaryID

	if block.Header.Number == 1 {
		account.Balance += db.genesis.GenesisReward

		storage := db.accounts[StorageAccountID]
		storage.AccountID = StorageAccountID
		storage.Balance += db.genesis.StorageBalance
		db.accounts[StorageAccountID] = storage
	} else {
		account.Balance += db.genesis.MiningReward
	}

	db.accounts[block.Header.BeneficiaryID] = account
}

// ApplyTransaction performs the business logic for applying a transaction
// to the database.
func (db *Database) ApplyTransaction(tx BlockTx) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.applyTx(db.accounts, tx)
}

// ValidateTransactions replays the specified transactions in order against
// a copy of the current account state. It reports the first transaction
// that fails, the real state is never touched.
func (db *Database) ValidateTransactions(txs []BlockTx) (BlockTx, error) {
	accounts := db.CopyAccounts()

	for _, tx := range txs {
		if err := db.applyTx(accounts, tx); err != nil {
			return tx, err
		}
	}

	return BlockTx{}, nil
}

// applyTx validates the transaction and moves the balances in the specified
// account set. The caller owns the locking of that set.
func (db *Database) applyTx(accounts map[AccountID]Account, tx BlockTx) error {

	// A block may only carry transactions whose signatures verify.
	if err := tx.Validate(db.genesis.ChainID); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidTransaction)
	}

	// The storage fee recorded in the transaction must match what the
	// protocol settings derive from the value.
	if fee := db.genesis.StorageFeeFor(tx.Value); tx.StorageFee != fee {
		return fmt.Errorf("storage fee mismatch, got %d, exp %d: %w", tx.StorageFee, fee, ErrInvalidTransaction)
	}

	// The cost is computed in uint64, a value near the maximum would wrap
	// past the balance check and mint money.
	if tx.Value > math.MaxUint64-tx.StorageFee {
		return fmt.Errorf("value %d plus fee %d overflows: %w", tx.Value, tx.StorageFee, ErrInvalidTransaction)
	}

	from, exists := accounts[tx.FromID]
	if !exists {
		from = newAccount(tx.FromID, 0)
	}

	to, exists := accounts[tx.ToID]
	if !exists {
		to = newAccount(tx.ToID, 0)
	}

	storage, exists := accounts[StorageAccountID]
	if !exists {
		storage = newAccount(StorageAccountID, 0)
	}

	cost := tx.Value + tx.StorageFee
	if cost > from.Balance {
		return fmt.Errorf("account %s balance %d can't cover value %d plus fee %d: %w",
			tx.FromID, from.Balance, tx.Value, tx.StorageFee, ErrInsufficientFunds)
	}

	from.Balance -= cost
	to.Balance += tx.Value
	storage.Balance += tx.StorageFee

	accounts[tx.FromID] = from
	accounts[tx.ToID] = to
	accounts[StorageAccountID] = storage

	return nil
}

// UpdateLatestBlock provides safe access to update the latest block.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Write adds a new block to the chain in storage.
func (db *Database) Write(block Block) error {
	return db.storage.Write(NewBlockData(block))
}

// GetBlock searches the blockchain on disk to locate and return the block
// with the specified number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// ForEach returns an iterator to walk the blockchain from the genesis
// block forward.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// =============================================================================

// DatabaseIterator provides support for iterating over the blocks in the
// blockchain in block number order.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData), nil
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}
