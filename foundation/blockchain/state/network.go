package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/peer"
)

// ErrPeerUnreachable is returned when a peer could not be reached after the
// retries were exhausted. Unreachable peers are removed from the known list.
var ErrPeerUnreachable = errors.New("peer unreachable")

const baseURL = "%s/v1/node"

// =============================================================================

// NetSendBlockToPeers takes the new block and sends it to all known peers
// except the one it was received from.
func (s *State) NetSendBlockToPeers(ctx context.Context, blockData database.BlockData, from string) {
	s.evHandler("state: NetSendBlockToPeers: started: blk[%d]", blockData.Height)
	defer s.evHandler("state: NetSendBlockToPeers: completed: blk[%d]", blockData.Height)

	for _, pr := range s.RetrieveKnownPeers() {
		if pr.Match(from) {
			continue
		}

		url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

		if err := s.send(ctx, http.MethodPost, url, blockData, nil); err != nil {
			s.evHandler("state: NetSendBlockToPeers: peer[%s]: WARNING: %s", pr.Host, err)
			s.dropUnreachable(pr, err)
			continue
		}

		s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr.Host)
	}
}

// NetGreetPeer introduces this node to the peer. The peer learns about this
// node and replies with its own status.
func (s *State) NetGreetPeer(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetGreetPeer: started: %s", pr.Host)
	defer s.evHandler("state: NetGreetPeer: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/greet", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(ctx, http.MethodPost, url, s.RetrievePeerStatus(), &ps); err != nil {
		s.dropUnreachable(pr, err)
		return peer.PeerStatus{}, err
	}

	s.addNewPeers(ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerStatus asks the peer for its chain size and known peers.
func (s *State) NetRequestPeerStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := s.send(ctx, http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: chain-size[%d]: peer-list[%v]", pr.Host, ps.ChainSize, ps.KnownPeers)

	return ps, nil
}

// NetRequestPeerChain asks the peer for its full chain.
func (s *State) NetRequestPeerChain(ctx context.Context, pr peer.Peer) ([]database.BlockData, error) {
	s.evHandler("state: NetRequestPeerChain: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerChain: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/chain", fmt.Sprintf(baseURL, pr.Host))

	var dump []database.BlockData
	if err := s.send(ctx, http.MethodGet, url, nil, &dump); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerChain: found blocks[%d]", len(dump))

	return dump, nil
}

// Consensus asks every known peer for its chain size and reconciles with the
// longest chain claimed. When the longest candidate fails to replay the next
// longest is tried. Unreachable peers are dropped on the way.
func (s *State) Consensus(ctx context.Context) (ReconcileResult, error) {
	s.evHandler("state: Consensus: started")
	defer s.evHandler("state: Consensus: completed")

	local := s.activeDB().Length()

	type candidate struct {
		peer      peer.Peer
		chainSize int
	}

	var candidates []candidate
	for _, pr := range s.RetrieveKnownPeers() {
		ps, err := s.NetRequestPeerStatus(ctx, pr)
		if err != nil {
			s.evHandler("state: Consensus: peer[%s]: ERROR: %s", pr.Host, err)
			s.dropUnreachable(pr, err)
			continue
		}

		s.addNewPeers(ps.KnownPeers)

		if ps.ChainSize > local {
			candidates = append(candidates, candidate{peer: pr, chainSize: ps.ChainSize})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].chainSize > candidates[j].chainSize
	})

	for _, c := range candidates {
		dump, err := s.NetRequestPeerChain(ctx, c.peer)
		if err != nil {
			s.evHandler("state: Consensus: peer[%s]: ERROR: %s", c.peer.Host, err)
			s.dropUnreachable(c.peer, err)
			continue
		}

		result, err := s.Reconcile(dump)
		if result == ChainReplaced {
			s.evHandler("state: Consensus: chain replaced from peer[%s]: blocks[%d]", c.peer.Host, len(dump))
			return ChainReplaced, nil
		}

		s.evHandler("state: Consensus: peer[%s]: chain kept: %s", c.peer.Host, err)
	}

	return ChainKept, nil
}

// =============================================================================

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers.
func (s *State) addNewPeers(knownPeers []peer.Peer) {
	for _, pr := range knownPeers {
		if s.AddKnownPeer(pr) {
			s.evHandler("state: addNewPeers: adding peer-node %s", pr.Host)
		}
	}
}

// dropUnreachable removes the peer when the error reports it can't be reached.
func (s *State) dropUnreachable(pr peer.Peer, err error) {
	if errors.Is(err, ErrPeerUnreachable) {
		s.evHandler("state: dropUnreachable: removing peer-node %s", pr.Host)
		s.RemoveKnownPeer(pr)
	}
}

// send is a helper function to send an HTTP request to a node. Transport
// failures are retried with an exponential backoff, any response from the
// peer is final.
func (s *State) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	var data []byte
	if dataSend != nil {
		var err error
		if data, err = json.Marshal(dataSend); err != nil {
			return err
		}
	}

	op := func() (*http.Response, error) {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(peer.HostHeader, s.host)

		resp, err := s.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			s.evHandler("state: send: %s %s: retrying: %s", method, url, err)
			return nil, err
		}

		return resp, nil
	}

	resp, err := backoff.RetryWithData[*http.Response](op, backoff.WithContext(newExponentialBackoff(), ctx))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}

// newExponentialBackoff bounds how long a single peer call may keep retrying.
func newExponentialBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Second*3),
		backoff.WithMaxInterval(time.Second),
		backoff.WithInitialInterval(time.Millisecond*100),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
	)
}
