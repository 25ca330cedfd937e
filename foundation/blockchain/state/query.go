package state

import (
	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
	"github.com/minicoin/minicoin/foundation/blockchain/peer"
)

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Host returns a copy of host information.
func (s *State) Host() string {
	return s.host
}

// KnownPeers retrieves a copy of the known peer list without this node.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to the known peer
// list and reports whether the peer was not already known.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	return s.knownPeers.Add(pr)
}

// Balance returns the current balance of the specified account. An account
// the chain has never seen has a balance of zero.
func (s *State) Balance(accountID database.AccountID) uint64 {
	return s.db.Balance(accountID)
}

// Accounts returns a copy of the database accounts.
func (s *State) Accounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// LatestBlock returns a copy of the current latest block.
func (s *State) LatestBlock() database.Block {
	return s.db.LatestBlock()
}

// ChainLength returns the number of blocks in the chain.
func (s *State) ChainLength() uint64 {
	return s.db.LatestBlock().Header.Number
}

// MempoolCount returns the current number of transactions in the mempool.
func (s *State) MempoolCount() int {
	return s.mempool.Count()
}

// Mempool returns a copy of the mempool in pick order.
func (s *State) Mempool() []database.BlockTx {
	return s.mempool.PickBest(s.mempool.Count())
}

// Blocks returns the complete chain from storage in block number order.
func (s *State) Blocks() ([]database.BlockData, error) {
	var blocks []database.BlockData

	iter := s.db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, database.NewBlockData(block))
	}

	return blocks, nil
}
