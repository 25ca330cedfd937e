package worker

// syncOperations polls the known peers on a timer and adopts a longer
// chain when one exists. A node that missed block proposals while down or
// partitioned converges through this path.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runSyncOperation()
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}

// runSyncOperation checks each peer's chain length and starts chain
// adoption when any peer reports a longer chain.
func (w *Worker) runSyncOperation() {
	w.evHandler("worker: runSyncOperation: started")
	defer w.evHandler("worker: runSyncOperation: completed")

	localLength := w.state.ChainLength()

	for _, pr := range w.state.KnownPeers() {
		length, err := w.state.NetRequestPeerChainLen(pr)
		if err != nil {
			w.evHandler("worker: runSyncOperation: WARNING: peer[%s]: %s", pr.Host, err)
			continue
		}

		if length > localLength {
			w.evHandler("worker: runSyncOperation: peer[%s] chain[%d] longer than local[%d]", pr.Host, length, localLength)

			if err := w.state.AdoptLongestPeerChain(); err != nil {
				w.evHandler("worker: runSyncOperation: WARNING: %s", err)
			}
			return
		}
	}
}
