package worker

// Sync introduces this node to the known peers and reconciles with the
// longest chain they hold.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	w.greetPeers(w.ctx)

	result, err := w.state.Consensus(w.ctx)
	if err != nil {
		w.evHandler("worker: sync: consensus: ERROR: %s", err)
		return
	}

	w.evHandler("worker: sync: consensus: chain %s", result)
}
