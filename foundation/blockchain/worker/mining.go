package worker

import (
	"context"
	"sync"
	"time"

	"github.com/powledger/node/foundation/blockchain/state"
)

// miningOperations handles mining. Once started, blocks are mined back to
// back until mining is stopped or the worker shuts down.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			for w.IsMining() && !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes all the transactions from the mempool and writes a
// new block to the database.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	// Drain the cancel mining channel before starting.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	// Mining may have been stopped while the channel was drained.
	if !w.IsMining() {
		return
	}

	// Create a context so mining can be cancelled.
	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		t := time.Now()
		blockData, result, err := w.state.MineNewBlock(ctx)
		duration := time.Since(t)

		w.evHandler("worker: runMiningOperation: MINING: result[%s]: duration[%v]", result, duration)

		switch result {
		case state.MineSolved:

			// WOW, we mined a block. Propose the new block to the network.
			w.SignalShareBlock(blockData, "")

		case state.MineDiscarded:
			w.evHandler("worker: runMiningOperation: MINING: WARNING: %s", err)
		}
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
