// Package packet implements the wire protocol spoken between nodes and
// between a wallet and a node. Every message is a single frame, an 8 byte
// big endian length followed by a JSON encoded Packet.
package packet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
)

// ErrOversized is returned when a frame announces or carries a body larger
// than the configured maximum. The connection should be dropped.
var ErrOversized = errors.New("packet exceeds the maximum size")

// frameHeaderSize is the number of bytes in the length prefix.
const frameHeaderSize = 8

// Set of packet types a node understands. The dispatch switch in the node
// handlers must stay exhaustive over this set.
const (
	TypeSubmitTx           = "submit_tx"
	TypeSubmitTxResult     = "submit_tx_result"
	TypeProposeBlock       = "propose_block"
	TypeProposeBlockResult = "propose_block_result"
	TypeChainRequest       = "chain_request"
	TypeChainResponse      = "chain_response"
	TypeBalanceRequest     = "balance_request"
	TypeBalanceResponse    = "balance_response"
	TypeChainLenRequest    = "chain_len_request"
	TypeChainLenResponse   = "chain_len_response"
)

// =============================================================================

// Packet is the envelope for every frame. The Data field holds the raw JSON
// of one of the payload types keyed by Type.
type Packet struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New constructs a packet carrying the specified payload.
func New(packetType string, payload any) (Packet, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, err
	}

	return Packet{Type: packetType, Data: data}, nil
}

// Decode unmarshals the packet payload into the specified value and runs
// the payload validation tags.
func (p Packet) Decode(payload any) error {
	if err := json.Unmarshal(p.Data, payload); err != nil {
		return fmt.Errorf("unable to decode %s payload: %w", p.Type, err)
	}

	if err := check.Struct(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", p.Type, err)
	}

	return nil
}

// check validates the payload structs against their declared tags.
var check = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================

// SubmitTx asks a node to accept a signed transaction into its mempool.
// Shared marks a relay between nodes, the receiving node must not flood
// the transaction again.
type SubmitTx struct {
	Tx     database.SignedTx `json:"tx" validate:"required"`
	Shared bool              `json:"shared"`
}

// SubmitTxResult reports whether a submitted transaction was accepted.
type SubmitTxResult struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ProposeBlock announces a freshly mined or adopted block together with
// the length of the chain it extends.
type ProposeBlock struct {
	Block       database.BlockData `json:"block" validate:"required"`
	ChainLength uint64             `json:"chain_length" validate:"required"`
}

// ProposeBlockResult reports whether a proposed block was accepted.
type ProposeBlockResult struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ChainRequest asks a node for its complete chain.
type ChainRequest struct{}

// ChainResponse carries a node's complete chain in block number order.
type ChainResponse struct {
	Blocks []database.BlockData `json:"blocks"`
}

// BalanceRequest asks a node for the balance of an account.
type BalanceRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

// BalanceResponse carries the balance of the requested account.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   uint64 `json:"balance"`
}

// ChainLenRequest asks a node for the length of its chain.
type ChainLenRequest struct{}

// ChainLenResponse carries the length of a node's chain.
type ChainLenResponse struct {
	Length uint64 `json:"length"`
}

// =============================================================================

// Limits bound what a node is willing to read from a peer.
type Limits struct {
	MaxSize        uint64        // Largest accepted frame body in bytes.
	ReceiveTimeout time.Duration // How long to wait for a complete frame.
}

// DefaultLimits returns the limits the reference network runs with.
func DefaultLimits() Limits {
	return Limits{
		MaxSize:        16 * 1024 * 1024,
		ReceiveTimeout: 10 * time.Second,
	}
}

// Send frames and writes the specified packet to the connection.
func Send(conn net.Conn, p Packet, limits Limits) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	if limits.MaxSize > 0 && uint64(len(body)) > limits.MaxSize {
		return fmt.Errorf("frame of %d bytes: %w", len(body), ErrOversized)
	}

	frame := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint64(frame, uint64(len(body)))
	copy(frame[frameHeaderSize:], body)

	if _, err := conn.Write(frame); err != nil {
		return err
	}

	return nil
}

// Receive reads one frame from the connection and decodes the packet
// envelope. The announced length is checked against the limits before any
// body bytes are read so an oversized frame can't exhaust memory.
func Receive(conn net.Conn, limits Limits) (Packet, error) {
	if limits.ReceiveTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(limits.ReceiveTimeout)); err != nil {
			return Packet{}, err
		}
	}

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return Packet{}, err
	}

	size := binary.BigEndian.Uint64(header[:])
	if limits.MaxSize > 0 && size > limits.MaxSize {
		return Packet{}, fmt.Errorf("frame announces %d bytes: %w", size, ErrOversized)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return Packet{}, err
	}

	var p Packet
	if err := json.Unmarshal(body, &p); err != nil {
		return Packet{}, fmt.Errorf("unable to decode packet envelope: %w", err)
	}
	if p.Type == "" {
		return Packet{}, errors.New("packet missing type")
	}

	return p, nil
}

// Roundtrip sends a packet over a new connection to the specified host and
// waits for a single response. It is the client side of every exchange.
func Roundtrip(host string, p Packet, limits Limits) (Packet, error) {
	conn, err := net.DialTimeout("tcp", host, limits.ReceiveTimeout)
	if err != nil {
		return Packet{}, err
	}
	defer conn.Close()

	if err := Send(conn, p, limits); err != nil {
		return Packet{}, err
	}

	return Receive(conn, limits)
}
