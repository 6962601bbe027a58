// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/powledger/node/business/web/errs"
	"github.com/powledger/node/business/web/validate"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/signature"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/events"
	"github.com/powledger/node/foundation/nameservice"
	"github.com/powledger/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client. The filter
// query parameter restricts the stream to events with the given prefixes,
// for example ?filter=viewer:
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	var prefixes []string
	if filter := r.URL.Query().Get("filter"); filter != "" {
		prefixes = strings.Split(filter, ",")
	}

	ch := h.Evts.Acquire(v.TraceID, prefixes...)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// ChainInfo returns the summary of the active ledger.
func (h Handlers) ChainInfo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveChainInfo(), http.StatusOK)
}

// Balances returns the current balances for all accounts or the specified one.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var bals []balance
	switch account {
	case "":
		for address, bal := range h.State.RetrieveBalances() {
			bals = append(bals, balance{Account: address, Name: h.NS.Lookup(address), Balance: bal})
		}
		sort.Slice(bals, func(i, j int) bool { return bals[i].Account < bals[j].Account })

	default:
		address := h.NS.Resolve(account)
		bal, err := h.State.QueryBalance(address)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return errs.NewTrusted(fmt.Errorf("account %s: %w", account, err), http.StatusNotFound)
			}
			return err
		}
		bals = append(bals, balance{Account: address, Name: h.NS.Lookup(address), Balance: bal})
	}

	resp := balances{
		Uncommitted: len(h.State.RetrieveMempool()),
		Balances:    bals,
	}
	if latest, err := h.State.RetrieveLatestBlock(); err == nil {
		resp.LatestBlock = latest.Hash
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = toTx(h.NS.Lookup, tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SubmitTransaction signs a transfer with a key held by the node and adds it
// to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submitTx
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	from := req.From
	if from != "" {
		from = h.NS.Resolve(from)
	}

	to := h.NS.Resolve(req.To)
	if !signature.IsAddress(to) {
		return validate.FieldErrors{{Field: "to", Error: "to must be a known name or an address"}}
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "from", from, "to", to, "amount", req.Amount)

	signed, err := h.State.SubmitTransaction(from, to, req.Amount)
	if err != nil {
		return txError(err)
	}

	return web.Respond(ctx, w, toTx(h.NS.Lookup, signed), http.StatusOK)
}

// SubmitSignedTransaction adds a transaction signed by a wallet to the mempool.
func (h Handlers) SubmitSignedTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req signedTx
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return validate.FieldErrors{{Field: "signature", Error: err.Error()}}
	}

	signed := database.NewTx(req.From, req.To, req.Amount)
	signed.Signature = sig

	h.Log.Infow("submit signed tran", "traceid", v.TraceID, "tx", signed)

	if err := h.State.SubmitSignedTransaction(signed); err != nil {
		return txError(err)
	}

	return web.Respond(ctx, w, toTx(h.NS.Lookup, signed), http.StatusOK)
}

// StartMining moves the node into the mining state.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.StartMining()
	return h.MiningStatus(ctx, w, r)
}

// StopMining moves the node into the idle state.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.StopMining()
	return h.MiningStatus(ctx, w, r)
}

// MiningStatus reports if the node is mining.
func (h Handlers) MiningStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := miningStatus{
		Mining: h.State.IsMining(),
		Miner:  h.State.RetrieveMinerAddress(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveKnownPeers(), http.StatusOK)
}

// AddPeer adds a node to the known peers, greets it and runs consensus.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req addPeer
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	pr := peer.New(req.Host)
	if !h.State.AddKnownPeer(pr) {
		return errs.NewTrusted(fmt.Errorf("peer %s is already known or is this node", pr.Host), http.StatusBadRequest)
	}

	if _, err := h.State.NetGreetPeer(ctx, pr); err != nil {
		return errs.NewTrusted(fmt.Errorf("greet %s: %w", pr.Host, err), http.StatusBadGateway)
	}

	h.State.Worker.SignalConsensus()

	return web.Respond(ctx, w, h.State.RetrieveKnownPeers(), http.StatusOK)
}

// Consensus reconciles with the longest chain held by the known peers.
func (h Handlers) Consensus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	result, err := h.State.Consensus(ctx)
	if err != nil {
		return err
	}

	resp := consensus{
		Result: string(result),
		Length: h.State.RetrieveChainInfo().Length,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// txError maps the reasons a transaction is refused to a status.
func txError(err error) error {
	switch {
	case database.IsRejection(err):
		return errs.NewTrusted(err, http.StatusBadRequest)
	case errors.Is(err, state.ErrUnknownKey):
		return errs.NewTrusted(err, http.StatusForbidden)
	case errors.Is(err, signature.ErrIdentity):
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	return err
}
