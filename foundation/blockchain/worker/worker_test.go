package worker_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/powledger/node/foundation/blockchain/genesis"
	"github.com/powledger/node/foundation/blockchain/state"
	"github.com/powledger/node/foundation/blockchain/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minerHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

func newState(t *testing.T) *state.State {
	key, err := crypto.HexToECDSA(minerHexKey)
	require.NoError(t, err)

	st, err := state.New(state.Config{
		MinerKey: key,
		Host:     "http://localhost:9080",
		// Every block counts as slow so the difficulty stays at 1.
		Genesis: genesis.Genesis{
			StartDifficulty: 1,
			BlockInterval:   0,
			MiningReward:    10,
		},
	})
	require.NoError(t, err)

	return st
}

func Test_StartStopMining(t *testing.T) {
	st := newState(t)

	w := worker.Run(st, worker.Config{PeerInterval: time.Hour})
	defer w.Shutdown()

	assert.False(t, st.IsMining())
	assert.False(t, st.StopMining(), "already idle")

	require.True(t, st.StartMining())
	assert.False(t, st.StartMining(), "already mining")
	assert.True(t, st.IsMining())

	require.Eventually(t, func() bool {
		return st.RetrieveChainInfo().Length >= 3
	}, 10*time.Second, 10*time.Millisecond, "blocks are mined back to back")

	require.True(t, st.StopMining())
	assert.False(t, st.IsMining())

	// Give an in flight attempt time to finish, then the chain stops growing.
	time.Sleep(100 * time.Millisecond)
	length := st.RetrieveChainInfo().Length
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, length, st.RetrieveChainInfo().Length)
}

func Test_AutoMineShutdown(t *testing.T) {
	st := newState(t)

	w := worker.Run(st, worker.Config{PeerInterval: time.Hour, AutoMine: true})
	assert.True(t, st.IsMining())

	require.Eventually(t, func() bool {
		return st.RetrieveChainInfo().Length >= 1
	}, 10*time.Second, 10*time.Millisecond)

	w.Shutdown()
	assert.False(t, st.IsMining())
	assert.False(t, st.StartMining(), "no mining after shutdown")
}
