package state

import (
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/peer"
)

// ChainInfo represents the summary of the active ledger.
type ChainInfo struct {
	Length         int    `json:"chain_size"`
	LatestHash     string `json:"latest_block_hash"`
	LatestHeight   uint64 `json:"latest_block_height"`
	NextDifficulty uint   `json:"next_difficulty"`
	NextTarget     string `json:"next_target"`
	PendingTxs     int    `json:"pending_txs"`
}

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveMinerAddress returns the address rewarded for mined blocks.
func (s *State) RetrieveMinerAddress() string {
	return s.minerAddress
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() (database.BlockData, error) {
	return s.activeDB().LatestBlock()
}

// RetrieveMempool returns a copy of the mempool in acceptance order.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Copy()
}

// RetrieveBalances returns a copy of the balances of the active ledger.
func (s *State) RetrieveBalances() map[string]uint64 {
	return s.activeDB().Balances()
}

// RetrieveChainDump returns a copy of the full chain, genesis first.
func (s *State) RetrieveChainDump() []database.BlockData {
	return s.activeDB().Blocks()
}

// RetrieveChainInfo returns a summary of the active ledger.
func (s *State) RetrieveChainInfo() ChainInfo {
	db := s.activeDB()

	difficulty := db.NextDifficulty()
	info := ChainInfo{
		Length:         db.Length(),
		NextDifficulty: difficulty,
		NextTarget:     database.TargetHex(difficulty),
		PendingTxs:     s.mempool.Count(),
	}

	if latest, err := db.LatestBlock(); err == nil {
		info.LatestHash = latest.Hash
		info.LatestHeight = latest.Height
	}

	return info
}

// RetrievePeerStatus returns the status of this node as reported to peers.
func (s *State) RetrievePeerStatus() peer.PeerStatus {
	info := s.RetrieveChainInfo()

	return peer.PeerStatus{
		Host:              s.host,
		ChainSize:         info.Length,
		LatestBlockHash:   info.LatestHash,
		LatestBlockNumber: info.LatestHeight,
		KnownPeers:        s.RetrieveKnownPeers(),
	}
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}
