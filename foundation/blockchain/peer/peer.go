// Package peer maintains the peer related information such as the set
// of know peers and their status.
package peer

import (
	"sort"
	"strings"
	"sync"
)

// HostHeader carries the host of the node making a request to a peer, so the
// peer can leave that node out when it forwards what it received.
const HostHeader = "X-Node-Host"

// Peer represents information about a Node in the network. The host is the
// base url of the node's private api.
type Peer struct {
	Host string `json:"host"`
}

// New contructs a new info value. The host is normalized so the same node
// given as "localhost:9080", "http://localhost:9080" or
// "http://localhost:9080/" is only known once.
func New(host string) Peer {
	return Peer{
		Host: Normalize(host),
	}
}

// Normalize trims surrounding space and trailing slashes and adds an http
// scheme when none is provided.
func Normalize(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimRight(host, "/")

	if host != "" && !strings.Contains(host, "://") {
		host = "http://" + host
	}

	return host
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == Normalize(host)
}

// =============================================================================

// PeerStatus represents information about the status
// of any given peer.
type PeerStatus struct {
	Host              string `json:"host"`
	ChainSize         int    `json:"chain_size"`
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a new info set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set. It reports false when the node was
// already known or the host is empty.
func (ps *PeerSet) Add(peer Peer) bool {
	peer = New(peer.Host)
	if peer.Host == "" {
		return false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, New(peer.Host))
}

// Copy returns a list of the known peers sorted by host, excluding the
// specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
