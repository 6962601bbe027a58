package worker

import (
	"context"
)

// peerOperations runs consensus with the known peers on every tick of the
// ticker or when signaled.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.consensus:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list and switches to the longest chain.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	result, err := w.state.Consensus(w.ctx)
	if err != nil {
		w.evHandler("worker: runPeersOperation: consensus: ERROR: %s", err)
		return
	}

	w.evHandler("worker: runPeersOperation: consensus: chain %s", result)
}

// greetPeers lets the known peers know this node is available to chat.
func (w *Worker) greetPeers(ctx context.Context) {
	for _, pr := range w.state.RetrieveKnownPeers() {
		if _, err := w.state.NetGreetPeer(ctx, pr); err != nil {
			w.evHandler("worker: greetPeers: %s: ERROR: %s", pr.Host, err)
		}
	}
}
