package state

import (
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var blocksMined = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_blocks_mined_total",
	Help: "Number of blocks mined by this node and accepted by the ledger",
})

var blocksPreempted = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_blocks_preempted_total",
	Help: "Number of mining attempts abandoned because the tip changed",
})

var blocksDiscarded = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_blocks_discarded_total",
	Help: "Number of solved blocks refused by the ledger",
})

var blocksAccepted = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_peer_blocks_accepted_total",
	Help: "Number of blocks received from peers and accepted",
})

var blocksRejected = metrics.Auto().NewCounterVec(prometheus.CounterOpts{
	Name: "node_blocks_rejected_total",
	Help: "Number of blocks rejected by the ledger by rejection kind",
}, []string{"kind"})

var chainReplacements = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_chain_replacements_total",
	Help: "Number of times the active ledger was replaced by a longer chain",
})

var txAccepted = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_tx_accepted_total",
	Help: "Number of transactions accepted into the mempool",
})

var txRejected = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_tx_rejected_total",
	Help: "Number of transactions refused by the mempool",
})

var peersRemoved = metrics.Auto().NewCounter(prometheus.CounterOpts{
	Name: "node_peers_removed_total",
	Help: "Number of peers dropped from the known list",
})

var chainHeight = metrics.Auto().NewGauge(prometheus.GaugeOpts{
	Name: "node_chain_height",
	Help: "Height of the latest block in the active ledger",
})

var mempoolSize = metrics.Auto().NewGauge(prometheus.GaugeOpts{
	Name: "node_mempool_size",
	Help: "Number of pending transactions",
})

var miningDuration = metrics.Auto().NewHistogram(prometheus.HistogramOpts{
	Name:    "node_mining_duration_seconds",
	Help:    "Time spent searching for a nonce per attempt",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
})

// rejectionLabel maps a rejection to the label of its kind.
func rejectionLabel(err error) string {
	if re := database.GetRejection(err); re != nil {
		return re.Kind.Error()
	}

	return "unknown"
}
