package worker

import (
	"github.com/powledger/node/foundation/blockchain/database"
)

// maxBlockShareRequests represents the max number of pending block network
// share requests that can be outstanding before share requests are dropped.
// To keep this simple, a buffered channel of this arbitrary number is being
// used. If the channel does become full, requests for new blocks to be shared
// will not be accepted.
const maxBlockShareRequests = 100

// shareRequest is a block to announce and the peer it came from, if any.
type shareRequest struct {
	blockData database.BlockData
	from      string
}

// =============================================================================

// SignalShareBlock queues an accepted block to be announced to the known
// peers, except the one it was received from.
func (w *Worker) SignalShareBlock(blockData database.BlockData, from string) {
	select {
	case w.blockSharing <- shareRequest{blockData: blockData, from: from}:
		w.evHandler("worker: SignalShareBlock: share blk[%d] signaled", blockData.Height)
	default:
		w.evHandler("worker: SignalShareBlock: queue full, blocks won't be shared.")
	}
}

// shareBlockOperations handles sharing new blocks.
func (w *Worker) shareBlockOperations() {
	w.evHandler("worker: shareBlockOperations: G started")
	defer w.evHandler("worker: shareBlockOperations: G completed")

	for {
		select {
		case req := <-w.blockSharing:
			if !w.isShutdown() {
				w.state.NetSendBlockToPeers(w.ctx, req.blockData, req.from)
			}
		case <-w.shut:
			w.evHandler("worker: shareBlockOperations: received shut signal")
			return
		}
	}
}
