// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/powledger/node/business/web/errs"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Greet registers the calling node as a peer and replies with the status of
// this node. When the caller holds a longer chain a consensus round is
// signaled.
func (h Handlers) Greet(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ps peer.PeerStatus
	if err := web.Decode(r, &ps); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if ps.Host != "" && h.State.AddKnownPeer(peer.New(ps.Host)) {
		h.Log.Infow("greet", "traceid", v.TraceID, "status", "new peer", "host", ps.Host)
	}

	status := h.State.RetrievePeerStatus()
	if ps.ChainSize > status.ChainSize {
		h.State.Worker.SignalConsensus()
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrievePeerStatus(), http.StatusOK)
}

// Chain returns the full chain of the node, genesis first.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveChainDump(), http.StatusOK)
}

// ProposeBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a block.
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	// The hash that came with the block is never trusted.
	block := database.ToBlock(blockData)

	// Ask the state package to validate the proposed block. If the block
	// passes validation, it will be added to the blockchain database.
	added, err := h.State.ProcessProposedBlock(block)
	if err != nil {
		if !database.IsRejection(err) {
			return err
		}

		// A block too far ahead means the peer holds a longer chain.
		if errors.Is(err, database.ErrChainLinkage) {
			latest, lerr := h.State.RetrieveLatestBlock()
			if lerr != nil || block.Height > latest.Height+1 {
				h.State.Worker.SignalConsensus()
			}
		}

		h.Log.Infow("propose block", "traceid", v.TraceID, "status", "rejected", "ERROR", err)
		return errs.NewTrusted(err, http.StatusNotAcceptable)
	}

	status := "accepted"
	if added {

		// Forward to every other peer, the sender already has the block.
		from := r.Header.Get(peer.HostHeader)
		h.State.Worker.SignalShareBlock(database.NewBlockData(block), from)
	} else {
		status = "already known"
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: status,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLastest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}
