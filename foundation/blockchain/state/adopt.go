package state

import (
	"fmt"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/database/storage/memory"
)

// AdoptLongestPeerChain cancels any in-flight mining operation and runs
// fork resolution against the known peers.
func (s *State) AdoptLongestPeerChain() error {
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: AdoptLongestPeerChain: signal runMiningOperation to terminate")
		done()
	}()

	return s.adoptLongestPeerChain()
}

// adoptLongestPeerChain pulls the complete chain from every known peer,
// validates each candidate from genesis, and replaces the local chain with
// the longest valid one. A tie or anything shorter keeps the local chain.
// Mining stays off for the duration so the swap can't race a commit.
func (s *State) adoptLongestPeerChain() error {
	s.evHandler("state: adoptLongestPeerChain: started")
	defer s.evHandler("state: adoptLongestPeerChain: completed")

	s.turnMiningOff()
	defer func() {
		s.TurnMiningOn()

		// The mempool may already hold a full block of transactions that
		// survived the swap, don't wait for the next submission.
		s.Worker.SignalStartMining()
	}()

	localLength := s.ChainLength()

	var bestBlocks []database.BlockData
	bestLength := localLength

	for _, pr := range s.KnownPeers() {
		blocks, err := s.NetRequestPeerChain(pr)
		if err != nil {
			s.evHandler("state: adoptLongestPeerChain: WARNING: peer[%s]: %s", pr.Host, err)
			continue
		}

		// Only a strictly longer chain can displace what we have. This also
		// rejects a candidate that merely ties the current best.
		if uint64(len(blocks)) <= bestLength {
			s.evHandler("state: adoptLongestPeerChain: peer[%s]: chain[%d] not longer than [%d]", pr.Host, len(blocks), bestLength)
			continue
		}

		if err := s.validateChain(blocks); err != nil {
			s.evHandler("state: adoptLongestPeerChain: WARNING: peer[%s]: %s", pr.Host, err)
			continue
		}

		bestBlocks = blocks
		bestLength = uint64(len(blocks))
	}

	if bestBlocks == nil {
		s.evHandler("state: adoptLongestPeerChain: keeping local chain[%d]", localLength)
		return nil
	}

	s.evHandler("state: adoptLongestPeerChain: adopting chain[%d] over local[%d]", bestLength, localLength)

	return s.replaceChain(bestBlocks)
}

// validateChain replays the candidate chain into a scratch database backed
// by memory storage. The replay runs the exact rules the node applies to
// its own chain, so a candidate that passes here is safe to adopt.
func (s *State) validateChain(blocks []database.BlockData) error {
	strg, err := memory.NewWithBlocks(blocks)
	if err != nil {
		return err
	}

	if _, err := database.New(s.genesis, strg, func(v string, args ...any) {}); err != nil {
		return fmt.Errorf("%v: %w", err, database.ErrChainValidation)
	}

	return nil
}

// replaceChain resets the local database and rebuilds it from the already
// validated candidate chain. Transactions settled by the new chain are
// removed from the mempool, the rest stay for the next mining pass.
func (s *State) replaceChain(blocks []database.BlockData) error {
	if err := s.db.Reset(); err != nil {
		return err
	}

	for _, blockData := range blocks {
		block := database.ToBlock(blockData)

		if err := s.db.Write(block); err != nil {
			return err
		}

		for _, tx := range block.Transactions {
			if err := s.db.ApplyTransaction(tx); err != nil {
				return err
			}
		}
		s.db.ApplyMiningReward(block)
		s.db.UpdateLatestBlock(block)

		s.mempool.DeleteAll(block.Transactions)
	}

	return nil
}
