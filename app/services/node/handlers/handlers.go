// Package handlers manages the packet dispatch for inbound connections
// and the debug endpoints.
package handlers

import (
	"errors"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
	"github.com/minicoin/minicoin/foundation/blockchain/state"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log    *zap.SugaredLogger
	State  *state.State
	Limits packet.Limits
}

// Conn services a single inbound connection. One packet is received,
// dispatched on its type, and answered. Errors never take the node down,
// the connection is dropped and the listener keeps accepting.
func (h Handlers) Conn(conn net.Conn) {
	defer conn.Close()

	p, err := packet.Receive(conn, h.Limits)
	if err != nil {
		switch {
		case errors.Is(err, packet.ErrOversized):
			h.Log.Warnw("conn", "remote", conn.RemoteAddr(), "ERROR", err)
		case os.IsTimeout(err):
			h.Log.Warnw("conn", "remote", conn.RemoteAddr(), "status", "receive timeout")
		default:
			h.Log.Warnw("conn", "remote", conn.RemoteAddr(), "ERROR", err)
		}
		return
	}

	resp, err := h.dispatch(p)
	if err != nil {
		h.Log.Warnw("conn", "remote", conn.RemoteAddr(), "type", p.Type, "ERROR", err)
		return
	}

	if err := packet.Send(conn, resp, h.Limits); err != nil {
		h.Log.Warnw("conn", "remote", conn.RemoteAddr(), "type", p.Type, "ERROR", err)
	}
}

// dispatch routes the packet to the state API based on its type. The
// switch is exhaustive over the request types, anything else is an error.
func (h Handlers) dispatch(p packet.Packet) (packet.Packet, error) {
	switch p.Type {
	case packet.TypeSubmitTx:
		return h.submitTx(p)

	case packet.TypeProposeBlock:
		return h.proposeBlock(p)

	case packet.TypeChainRequest:
		return h.chainRequest()

	case packet.TypeChainLenRequest:
		return packet.New(packet.TypeChainLenResponse, packet.ChainLenResponse{
			Length: h.State.ChainLength(),
		})

	case packet.TypeBalanceRequest:
		return h.balanceRequest(p)
	}

	return packet.Packet{}, errors.New("unknown packet type " + p.Type)
}

// submitTx accepts a signed transaction from a wallet or a peer node.
func (h Handlers) submitTx(p packet.Packet) (packet.Packet, error) {
	var payload packet.SubmitTx
	if err := p.Decode(&payload); err != nil {
		return packet.Packet{}, err
	}

	h.Log.Infow("submit tx", "tx", payload.Tx, "to", payload.Tx.ToID, "value", payload.Tx.Value, "fee", payload.Tx.StorageFee, "shared", payload.Shared)

	var err error
	if payload.Shared {
		err = h.State.SubmitNodeTransaction(database.NewBlockTx(payload.Tx))
	} else {
		err = h.State.SubmitWalletTransaction(payload.Tx)
	}

	result := packet.SubmitTxResult{Accepted: err == nil}
	if err != nil {
		result.Error = err.Error()
	}

	return packet.New(packet.TypeSubmitTxResult, result)
}

// proposeBlock accepts a block proposal from a peer node.
func (h Handlers) proposeBlock(p packet.Packet) (packet.Packet, error) {
	var payload packet.ProposeBlock
	if err := p.Decode(&payload); err != nil {
		return packet.Packet{}, err
	}

	h.Log.Infow("propose block", "block", payload.Block.Hash, "number", payload.Block.Header.Number, "chainlen", payload.ChainLength)

	err := h.State.ProcessProposedBlock(database.ToBlock(payload.Block), payload.ChainLength)

	result := packet.ProposeBlockResult{Accepted: err == nil}
	if err != nil {
		result.Error = err.Error()
	}

	return packet.New(packet.TypeProposeBlockResult, result)
}

// chainRequest answers with the complete local chain.
func (h Handlers) chainRequest() (packet.Packet, error) {
	blocks, err := h.State.Blocks()
	if err != nil {
		return packet.Packet{}, err
	}

	return packet.New(packet.TypeChainResponse, packet.ChainResponse{Blocks: blocks})
}

// balanceRequest answers with the balance of the requested account.
func (h Handlers) balanceRequest(p packet.Packet) (packet.Packet, error) {
	var payload packet.BalanceRequest
	if err := p.Decode(&payload); err != nil {
		return packet.Packet{}, err
	}

	accountID, err := database.ToAccountID(payload.AccountID)
	if err != nil {
		return packet.Packet{}, err
	}

	return packet.New(packet.TypeBalanceResponse, packet.BalanceResponse{
		AccountID: string(accountID),
		Balance:   h.State.Balance(accountID),
	})
}
