// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"crypto/ecdsa"
	"sync"

	"github.com/minicoin/minicoin/foundation/blockchain/database"
	"github.com/minicoin/minicoin/foundation/blockchain/genesis"
	"github.com/minicoin/minicoin/foundation/blockchain/mempool"
	"github.com/minicoin/minicoin/foundation/blockchain/packet"
	"github.com/minicoin/minicoin/foundation/blockchain/peer"
)

// EventHandler defines a function that is called when events occur in the
// processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for mining and transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(blockTx database.BlockTx)
}

// =============================================================================

// Config represents the configuration required to start the blockchain
// node. The private key identifies the beneficiary and signs the blocks
// this node mines.
type Config struct {
	PrivateKey *ecdsa.PrivateKey
	Host       string
	Genesis    genesis.Genesis
	Storage    database.Storage
	KnownPeers *peer.PeerSet
	Limits     packet.Limits
	EvHandler  EventHandler
}

// State manages the blockchain database.
type State struct {
	mu          sync.RWMutex
	allowMining bool

	privateKey    *ecdsa.PrivateKey
	beneficiaryID database.AccountID
	host          string
	evHandler     EventHandler
	limits        packet.Limits

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	db         *database.Database

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Open the database against the configured storage. Any existing chain
	// is replayed and validated here.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	mempool, err := mempool.New()
	if err != nil {
		return nil, err
	}

	limits := cfg.Limits
	if limits.MaxSize == 0 && limits.ReceiveTimeout == 0 {
		limits = packet.DefaultLimits()
	}

	state := State{
		allowMining:   true,
		privateKey:    cfg.PrivateKey,
		beneficiaryID: database.PublicKeyToAccountID(cfg.PrivateKey.PublicKey),
		host:          cfg.Host,
		evHandler:     ev,
		limits:        limits,

		knownPeers: cfg.KnownPeers,
		genesis:    cfg.Genesis,
		mempool:    mempool,
		db:         db,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Make sure the database is properly closed.
	defer func() {
		s.db.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// IsMiningAllowed identifies if we are allowed to mine blocks. This
// might be turned off if the chain is being adopted from a peer.
func (s *State) IsMiningAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.allowMining
}

// TurnMiningOn sets the allowMining flag back to true.
func (s *State) TurnMiningOn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = true
}

// turnMiningOff sets the allowMining flag to false.
func (s *State) turnMiningOff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = false
}
