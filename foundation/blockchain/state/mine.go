package state

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// ErrNotEnoughTransactions is returned when a block is requested to be
// created and the mempool doesn't hold a full block of transactions.
var ErrNotEnoughTransactions = errors.New("not enough transactions in mempool")

// =============================================================================

// MineGenesisBlock creates the first block of a brand new chain. It carries
// no transactions and is mined with the same POW loop as every other block.
func (s *State) MineGenesisBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineGenesisBlock: MINING: started")
	defer s.evHandler("state: MineGenesisBlock: MINING: completed")

	if s.db.LatestBlock().Header.Number != 0 {
		return database.Block{}, errors.New("chain already has a genesis block")
	}

	block, err := database.POW(ctx, database.POWArgs{
		PrivateKey: s.privateKey,
		Difficulty: s.genesis.Difficulty,
		PrevBlock:  s.db.LatestBlock(),
		StateRoot:  s.db.HashState(),
		Trans:      nil,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	if err := s.updateLocalState(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Only mine when a full block of transactions is waiting.
	if s.mempool.Count() < int(s.genesis.TransPerBlock) {
		return database.Block{}, ErrNotEnoughTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Pick the oldest transactions for the block. They stay in the mempool
	// until the block is committed, a cancelled attempt loses nothing.
	trans := s.mempool.PickBest(int(s.genesis.TransPerBlock))

	// Replay the picked transactions against the current balances before
	// burning any work on them. A transaction that was affordable when it
	// was submitted may not be anymore. Dropping it from the mempool keeps
	// the next attempt from picking it again.
	if tx, err := s.db.ValidateTransactions(trans); err != nil {
		s.evHandler("state: MineNewBlock: MINING: WARNING: drop tx[%s]: %s", tx, err)
		s.mempool.Delete(tx)
		return database.Block{}, fmt.Errorf("transaction no longer applies: %w", err)
	}

	block, err := database.POW(ctx, database.POWArgs{
		PrivateKey: s.privateKey,
		Difficulty: s.genesis.Difficulty,
		PrevBlock:  s.db.LatestBlock(),
		StateRoot:  s.db.HashState(),
		Trans:      trans,
		EvHandler:  s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: update local state")

	if err := s.updateLocalState(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessProposedBlock takes a block received from a peer, validates it,
// and if that passes, commits it to the chain. When the block doesn't
// extend our chain but the sender claims a longer one, fork resolution is
// started instead.
func (s *State) ProcessProposedBlock(block database.Block, senderChainLength uint64) error {
	s.evHandler("state: ProcessProposedBlock: started: block[%s]", block.Hash())
	defer s.evHandler("state: ProcessProposedBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from
	// the function until done is called. That allows this function to
	// complete its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
		done()
	}()

	err := block.ValidateBlock(s.db.LatestBlock(), s.db.HashState(), s.genesis.Difficulty, s.evHandler)
	if err == nil {
		return s.updateLocalState(block)
	}

	// The block doesn't chain onto ours. If the sender has a longer chain
	// this may be a fork we lost, pull the peer chains and decide.
	if errors.Is(err, database.ErrInvalidLink) && senderChainLength > s.ChainLength() {
		s.evHandler("state: ProcessProposedBlock: fork detected: local[%d] sender[%d]", s.ChainLength(), senderChainLength)
		return s.adoptLongestPeerChain()
	}

	return err
}

// =============================================================================

// updateLocalState takes the block and updates the current state of the
// chain, including writing the block to storage. A block whose transactions
// don't replay against the current balances is rejected before anything is
// written, otherwise our storage would hold a chain we can't replay.
func (s *State) updateLocalState(block database.Block) error {
	s.evHandler("state: updateLocalState: validate transactions against balances")

	if tx, err := s.db.ValidateTransactions(block.Transactions); err != nil {
		return fmt.Errorf("tx[%s]: %v: %w", tx, err, database.ErrInvalidTransaction)
	}

	s.evHandler("state: updateLocalState: write block to storage")

	if err := s.db.Write(block); err != nil {
		return err
	}
	s.db.UpdateLatestBlock(block)

	s.evHandler("state: updateLocalState: update accounts and remove from mempool")

	// Process the transactions and update the accounts.
	for _, tx := range block.Transactions {
		s.evHandler("state: updateLocalState: tx[%s] update and remove", tx)

		if err := s.db.ApplyTransaction(tx); err != nil {
			return err
		}
	}

	// Drop every transaction the block settled, no matter who mined it.
	s.mempool.DeleteAll(block.Transactions)

	s.evHandler("state: updateLocalState: apply mining reward")

	s.db.ApplyMiningReward(block)

	return nil
}

// validateTransaction takes a signed transaction and validates the
// signature, the derived storage fee, and that the sender can afford it
// against the current account balances.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return fmt.Errorf("%v: %w", err, database.ErrInvalidSignature)
	}

	if fee := s.genesis.StorageFeeFor(signedTx.Value); signedTx.StorageFee != fee {
		return fmt.Errorf("storage fee mismatch, got %d, exp %d", signedTx.StorageFee, fee)
	}

	// The cost is computed in uint64, a value near the maximum would wrap
	// past the balance check and mint money.
	if signedTx.Value > math.MaxUint64-signedTx.StorageFee {
		return fmt.Errorf("value %d plus fee %d overflows: %w", signedTx.Value, signedTx.StorageFee, database.ErrInvalidTransaction)
	}

	if cost := signedTx.Value + signedTx.StorageFee; cost > s.db.Balance(signedTx.FromID) {
		return fmt.Errorf("account %s can't afford %d: %w", signedTx.FromID, cost, database.ErrInsufficientFunds)
	}

	return nil
}
