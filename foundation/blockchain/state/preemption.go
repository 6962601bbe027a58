package state

import "sync/atomic"

// Preemption is the signal used to abandon an in progress mining attempt. It
// is raised whenever the tip of the active ledger changes underneath the
// miner and is read by the miner on every nonce attempt.
type Preemption struct {
	flag atomic.Bool
}

// Raise sets the signal.
func (p *Preemption) Raise() {
	p.flag.Store(true)
}

// Clear resets the signal.
func (p *Preemption) Clear() {
	p.flag.Store(false)
}

// Raised reports if the signal is set.
func (p *Preemption) Raised() bool {
	return p.flag.Load()
}
