// Package worker implements mining, block sharing and consensus for the
// blockchain.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/powledger/node/foundation/blockchain/state"
)

// defaultPeerInterval represents the interval of finding new peer nodes
// and reconciling with the longest chain.
const defaultPeerInterval = time.Minute

// =============================================================================

// Config represents the settings for the background processes.
type Config struct {
	PeerInterval time.Duration
	AutoMine     bool
	EvHandler    state.EventHandler
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	ticker       *time.Ticker
	ctx          context.Context
	cancel       context.CancelFunc
	shut         chan struct{}
	mining       atomic.Bool
	startMining  chan bool
	cancelMining chan bool
	consensus    chan bool
	blockSharing chan shareRequest
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	interval := cfg.PeerInterval
	if interval <= 0 {
		interval = defaultPeerInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := Worker{
		state:        st,
		ticker:       time.NewTicker(interval),
		ctx:          ctx,
		cancel:       cancel,
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan bool, 1),
		consensus:    make(chan bool, 1),
		blockSharing: make(chan shareRequest, maxBlockShareRequests),
		evHandler:    ev,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.shareBlockOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	if cfg.AutoMine {
		w.StartMining()
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	w.StopMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.cancel()
	w.wg.Wait()
}

// StartMining moves the node into the mining state. If there is already a
// signal pending in the channel, just return since mining will start.
func (w *Worker) StartMining() bool {
	if w.isShutdown() || !w.mining.CompareAndSwap(false, true) {
		return false
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: StartMining: mining signaled")

	return true
}

// StopMining moves the node into the idle state and signals the G executing
// the runMiningOperation function to stop immediately.
func (w *Worker) StopMining() bool {
	if !w.mining.CompareAndSwap(true, false) {
		return false
	}

	select {
	case w.cancelMining <- true:
	default:
	}
	w.evHandler("worker: StopMining: MINING: CANCEL: signaled")

	return true
}

// IsMining reports if the node is in the mining state.
func (w *Worker) IsMining() bool {
	return w.mining.Load()
}

// SignalConsensus starts a consensus round outside of the ticker. If there
// is already a signal pending in the channel, just return.
func (w *Worker) SignalConsensus() {
	select {
	case w.consensus <- true:
		w.evHandler("worker: SignalConsensus: consensus signaled")
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
