package state

import (
	"fmt"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
	"github.com/minicoin/minicoin/foundation/blockchain/peer"
)

// NetSendBlockToPeers proposes a freshly committed block to every known
// peer. Errors talking to an individual peer are collected, a dead peer
// never blocks propagation to the rest.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started: block[%s]", block.Hash())
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	p, err := packet.New(packet.TypeProposeBlock, packet.ProposeBlock{
		Block:       database.NewBlockData(block),
		ChainLength: s.ChainLength(),
	})
	if err != nil {
		return err
	}

	var errCount int
	for _, peer := range s.KnownPeers() {
		if _, err := packet.Roundtrip(peer.Host, p, s.limits); err != nil {
			s.evHandler("state: NetSendBlockToPeers: WARNING: peer[%s]: %s", peer.Host, err)
			errCount++
		}
	}

	if errCount > 0 {
		return fmt.Errorf("failed to send block to %d peers", errCount)
	}

	return nil
}

// NetSendTxToPeers relays an accepted wallet transaction to every known
// peer.
func (s *State) NetSendTxToPeers(tx database.BlockTx) {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", tx)
	defer s.evHandler("state: NetSendTxToPeers: completed")

	p, err := packet.New(packet.TypeSubmitTx, packet.SubmitTx{
		Tx:     tx.SignedTx,
		Shared: true,
	})
	if err != nil {
		s.evHandler("state: NetSendTxToPeers: WARNING: %s", err)
		return
	}

	for _, peer := range s.KnownPeers() {
		if _, err := packet.Roundtrip(peer.Host, p, s.limits); err != nil {
			s.evHandler("state: NetSendTxToPeers: WARNING: peer[%s]: %s", peer.Host, err)
		}
	}
}

// NetRequestPeerChainLen asks the specified peer for the length of its
// chain.
func (s *State) NetRequestPeerChainLen(pr peer.Peer) (uint64, error) {
	p, err := packet.New(packet.TypeChainLenRequest, packet.ChainLenRequest{})
	if err != nil {
		return 0, err
	}

	resp, err := packet.Roundtrip(pr.Host, p, s.limits)
	if err != nil {
		return 0, err
	}

	var payload packet.ChainLenResponse
	if err := resp.Decode(&payload); err != nil {
		return 0, err
	}

	return payload.Length, nil
}

// NetRequestPeerChain asks the specified peer for its complete chain in
// block number order.
func (s *State) NetRequestPeerChain(pr peer.Peer) ([]database.BlockData, error) {
	p, err := packet.New(packet.TypeChainRequest, packet.ChainRequest{})
	if err != nil {
		return nil, err
	}

	resp, err := packet.Roundtrip(pr.Host, p, s.limits)
	if err != nil {
		return nil, err
	}

	var payload packet.ChainResponse
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}

	return payload.Blocks, nil
}
