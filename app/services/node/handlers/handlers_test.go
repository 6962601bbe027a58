package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/app/services/node/handlers"
	"github.com/powledger/node/foundation/blockchain/database"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/peer"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/blockchain/worker"
	"github.com/powledger/node/foundation/events"
	"github.com/powledger/node/foundation/nameservice"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type node struct {
	public  http.Handler
	private http.Handler
	state   *state.State
	ns      *nameservice.NameService
}

func newNode(t *testing.T) node {
	dir := t.TempDir()
	for _, name := range []string{"miner", "alice"} {
		pk, err := crypto.GenerateKey()
		require.NoError(t, err)
		require.NoError(t, crypto.SaveECDSA(filepath.Join(dir, name+".ecdsa"), pk))
	}

	ns, err := nameservice.New(dir)
	require.NoError(t, err)

	minerKey, ok := ns.PrivateKey("miner")
	require.True(t, ok)

	// A zero block interval keeps every block slow so the difficulty stays at 1.
	st, err := state.New(state.Config{
		MinerKey: minerKey,
		Host:     "http://node-test:9080",
		Genesis: genesis.Genesis{
			StartDifficulty: 1,
			MiningReward:    10,
		},
		KeyStore: ns,
	})
	require.NoError(t, err)

	worker.Run(st, worker.Config{PeerInterval: time.Hour})
	t.Cleanup(func() { st.Shutdown() })

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		State:    st,
		NS:       ns,
		Evts:     events.New(),
	}

	return node{
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		state:   st,
		ns:      ns,
	}
}

func call(t *testing.T, h http.Handler, method string, path string, body any, resp any) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if resp != nil && w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(resp))
	}

	return w.Code
}

// =============================================================================

func Test_MiningAndTransfer(t *testing.T) {
	n := newNode(t)
	pub := n.public

	var gen genesis.Genesis
	require.Equal(t, http.StatusOK, call(t, pub, http.MethodGet, "/v1/genesis/list", nil, &gen))
	require.Equal(t, uint64(10), gen.MiningReward)

	var status struct {
		Mining bool   `json:"mining"`
		Miner  string `json:"miner"`
	}
	require.Equal(t, http.StatusOK, call(t, pub, http.MethodPost, "/v1/mining/start", nil, &status))
	require.True(t, status.Mining)
	require.Equal(t, n.ns.Resolve("miner"), status.Miner)

	require.Eventually(t, func() bool {
		var info state.ChainInfo
		call(t, pub, http.MethodGet, "/v1/chain/info", nil, &info)
		return info.Length >= 2
	}, 10*time.Second, 50*time.Millisecond, "should mine a block past genesis")

	require.Equal(t, http.StatusOK, call(t, pub, http.MethodPost, "/v1/mining/stop", nil, &status))
	require.False(t, status.Mining)

	// Every block after genesis pays the miner. An attempt solved while
	// stopping may still land, so compare once the chain settles.
	require.Eventually(t, func() bool {
		var info state.ChainInfo
		call(t, pub, http.MethodGet, "/v1/chain/info", nil, &info)

		var bals struct {
			Balances []struct {
				Name    string `json:"name"`
				Balance uint64 `json:"balance"`
			} `json:"balances"`
		}
		if call(t, pub, http.MethodGet, "/v1/balances/list/miner", nil, &bals) != http.StatusOK || len(bals.Balances) != 1 {
			return false
		}

		return bals.Balances[0].Name == "miner" && bals.Balances[0].Balance == uint64(10*(info.Length-1))
	}, 5*time.Second, 50*time.Millisecond, "miner should hold the reward of every mined block")

	submit := map[string]any{"from": "miner", "to": "alice", "amount": 3}
	require.Equal(t, http.StatusOK, call(t, pub, http.MethodPost, "/v1/tx/submit", submit, nil))

	var pool []struct {
		ToName string `json:"to_name"`
		Amount uint64 `json:"amount"`
	}
	require.Equal(t, http.StatusOK, call(t, pub, http.MethodGet, "/v1/tx/pool", nil, &pool))
	require.Len(t, pool, 1)
	require.Equal(t, "alice", pool[0].ToName)
	require.Equal(t, uint64(3), pool[0].Amount)

	overspend := map[string]any{"from": "miner", "to": "alice", "amount": 1_000_000}
	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/tx/submit", overspend, nil))

	unknown := map[string]any{"from": "miner", "to": "nobody", "amount": 1}
	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/tx/submit", unknown, nil))
}

func Test_Validation(t *testing.T) {
	n := newNode(t)
	pub := n.public

	require.Equal(t, http.StatusNotFound, call(t, pub, http.MethodGet, "/v1/balances/list/alice", nil, nil))

	missing := map[string]any{"from": "miner"}
	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/tx/submit", missing, nil))

	signed := map[string]any{
		"from":      n.ns.Resolve("alice"),
		"to":        n.ns.Resolve("miner"),
		"amount":    1,
		"signature": "not-hex",
	}
	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/tx/signed", signed, nil))

	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/peers/add", map[string]any{}, nil))
	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodPost, "/v1/peers/add", map[string]any{"host": "http://node-test:9080"}, nil))

	require.Equal(t, http.StatusBadRequest, call(t, pub, http.MethodGet, "/v1/blocks/list/5/1", nil, nil))
	require.Equal(t, http.StatusNoContent, call(t, pub, http.MethodGet, "/v1/blocks/list/1/latest", nil, nil))
}

func Test_NodeRoutes(t *testing.T) {
	n := newNode(t)
	prv := n.private

	var ps peer.PeerStatus
	require.Equal(t, http.StatusOK, call(t, prv, http.MethodGet, "/v1/node/status", nil, &ps))
	require.Equal(t, "http://node-test:9080", ps.Host)
	require.Zero(t, ps.ChainSize)

	// A block that does not link to the tip is refused.
	block := database.NewBlockData(database.Block{
		Height:     7,
		Difficulty: 1,
		PrevHash:   "feed",
	})
	require.Equal(t, http.StatusNotAcceptable, call(t, prv, http.MethodPost, "/v1/node/block/propose", block, nil))

	greet := peer.PeerStatus{Host: "http://node-other:9080"}
	require.Equal(t, http.StatusOK, call(t, prv, http.MethodPost, "/v1/node/greet", greet, &ps))
	require.Contains(t, n.state.RetrieveKnownPeers(), peer.New("http://node-other:9080"))

	var chain []database.BlockData
	require.Equal(t, http.StatusOK, call(t, prv, http.MethodGet, "/v1/node/chain", nil, &chain))
	require.Empty(t, chain)
}

func Test_ProposedBlockForwarding(t *testing.T) {
	n := newNode(t)

	// Each peer reports the proposals it receives.
	newPeer := func(received chan<- string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received <- r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"accepted"}`))
		}))
		t.Cleanup(srv.Close)
		return srv
	}

	fromSender := make(chan string, 4)
	fromOther := make(chan string, 4)
	sender := newPeer(fromSender)
	other := newPeer(fromOther)

	require.True(t, n.state.AddKnownPeer(peer.New(sender.URL)))
	require.True(t, n.state.AddKnownPeer(peer.New(other.URL)))

	block := database.NewBlockData(database.NewGenesisBlock(1, uint64(time.Now().Unix())))

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(block))

	r := httptest.NewRequest(http.MethodPost, "/v1/node/block/propose", &buf)
	r.Header.Set(peer.HostHeader, sender.URL)
	w := httptest.NewRecorder()
	n.private.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case path := <-fromOther:
		require.Equal(t, "/v1/node/block/propose", path)
	case <-time.After(5 * time.Second):
		t.Fatal("block was not forwarded to the other peer")
	}

	select {
	case <-fromSender:
		t.Fatal("block was sent back to the node that proposed it")
	case <-time.After(200 * time.Millisecond):
	}
}
