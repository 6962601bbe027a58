// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"crypto/ecdsa"
	"net/http"
	"sync"
	"time"

	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/mempool"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/signature"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, block sharing and consensus.
type Worker interface {
	Shutdown()
	StartMining() bool
	StopMining() bool
	IsMining() bool
	SignalShareBlock(blockData database.BlockData, from string)
	SignalConsensus()
}

// KeyStore represents the set of private keys held by the node for accounts
// that can be spent from through the node.
type KeyStore interface {
	PrivateKey(address string) (*ecdsa.PrivateKey, bool)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	MinerKey    *ecdsa.PrivateKey
	Host        string
	Genesis     genesis.Genesis
	KnownPeers  *peer.PeerSet
	KeyStore    KeyStore
	PeerTimeout time.Duration
	EvHandler   EventHandler
}

// State manages the blockchain database.
type State struct {
	minerKey     *ecdsa.PrivateKey
	minerAddress string
	host         string
	evHandler    EventHandler
	client       *http.Client

	// mu serializes every writer of the ledger and the mempool and guards
	// the pointer to the active ledger, which is swapped by Reconcile.
	mu sync.RWMutex
	db *database.Database

	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	keyStore   KeyStore
	mempool    *mempool.Mempool
	preemption Preemption

	Worker Worker
}

// New constructs a new blockchain for data management. The ledger starts
// empty, the first mining attempt creates the genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MinerKey == nil {
		return nil, signature.ErrIdentity
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	peerTimeout := cfg.PeerTimeout
	if peerTimeout == 0 {
		peerTimeout = 5 * time.Second
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		minerKey:     cfg.MinerKey,
		minerAddress: signature.Address(cfg.MinerKey.PublicKey),
		host:         peer.Normalize(cfg.Host),
		evHandler:    ev,
		client:       &http.Client{Timeout: peerTimeout},

		db: database.New(cfg.Genesis, database.EventHandler(ev)),

		genesis:    cfg.Genesis,
		knownPeers: knownPeers,
		keyStore:   cfg.KeyStore,
		mempool:    mempool.New(),
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// StartMining moves the node into the mining state. It reports false when
// the node was already mining.
func (s *State) StartMining() bool {
	return s.Worker.StartMining()
}

// StopMining moves the node into the idle state. It reports false when the
// node was already idle.
func (s *State) StopMining() bool {
	return s.Worker.StopMining()
}

// IsMining reports if the node is in the mining state.
func (s *State) IsMining() bool {
	return s.Worker.IsMining()
}

// =============================================================================

// activeDB returns the active ledger.
func (s *State) activeDB() *database.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db
}

// pruneMempool drops the pending transactions that can no longer be applied
// on top of the active ledger. The caller must hold the write lock.
func (s *State) pruneMempool() {
	valid, errs := s.db.ValidatePending(s.mempool.Copy())
	for _, err := range errs {
		s.evHandler("state: pruneMempool: drop: %s", err)
	}

	s.mempool.Replace(valid)
	mempoolSize.Set(float64(len(valid)))
}
