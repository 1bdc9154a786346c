package engine_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocledger/pocledger/pkg/api"
	"github.com/pocledger/pocledger/pkg/consensus"
	"github.com/pocledger/pocledger/pkg/contract"
	"github.com/pocledger/pocledger/pkg/engine"
	"github.com/pocledger/pocledger/pkg/network"
)

type replica struct {
	id  consensus.NodeID
	eng *engine.Engine
	srv *httptest.Server
}

// buildCluster wires k replicas together exactly the way cmd/replica
// does at startup, except peer addresses point at in-process httptest
// servers instead of real network hosts.
func buildCluster(t *testing.T, k int) []*replica {
	t.Helper()

	ids := make([]consensus.NodeID, k)
	for i := range ids {
		ids[i] = consensus.NodeID("node" + string(rune('1'+i)))
	}

	servers := make([]*httptest.Server, k)
	addrs := make(map[consensus.NodeID]string, k)
	for i := range ids {
		servers[i] = httptest.NewUnstartedServer(http.NotFoundHandler())
		addrs[ids[i]] = "http://" + servers[i].Listener.Addr().String()
	}

	replicas := make([]*replica, k)
	now := func() float64 { return float64(time.Now().UnixNano()) / 1e9 }

	for i, id := range ids {
		peers := make(map[consensus.NodeID]string, k-1)
		for j, peerID := range ids {
			if j == i {
				continue
			}
			peers[peerID] = addrs[peerID]
		}

		cfg := consensus.DefaultConfig(id, k)
		cfg.UnicastBackoff = time.Millisecond
		cfg.UnicastRetries = 2

		eng, err := engine.New(cfg, consensus.Genesis(), peers, "node1", now)
		require.NoError(t, err)

		ledger := contract.NewLedger("test", "TST", 1000, string(id))
		srvAPI := api.NewServer(eng, ledger)
		servers[i].Config.Handler = srvAPI.Router()
		servers[i].Start()

		replicas[i] = &replica{id: id, eng: eng, srv: servers[i]}
	}

	t.Cleanup(func() {
		for _, s := range servers {
			s.Close()
		}
	})

	return replicas
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestHappyPathRound drives scenario A: entropy contribution,
// aggregation, leader rotation, block proposal and majority
// validation across four in-process replicas.
func TestHappyPathRound(t *testing.T) {
	replicas := buildCluster(t, 4)
	leader := replicas[0]

	for _, id := range []string{"t1", "t2", "t3"} {
		resp := post(t, leader.srv.URL+"/add_transaction", map[string]interface{}{
			"transaction": map[string]interface{}{"id": id, "data": "x"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	waitFor(t, time.Second, func() bool {
		return leader.eng.Chain().MempoolSize() == 3
	})

	for _, r := range replicas[1:] {
		resp := post(t, r.srv.URL+"/send_entropy", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var aggResp struct {
		NextLeader string `json:"next_leader"`
	}
	waitFor(t, time.Second, func() bool {
		resp := post(t, leader.srv.URL+"/aggregate_entropy", nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&aggResp))
		return aggResp.NextLeader != ""
	})

	var newLeader *replica
	for _, r := range replicas {
		if string(r.id) == aggResp.NextLeader {
			newLeader = r
		}
	}
	require.NotNil(t, newLeader)

	waitFor(t, time.Second, func() bool {
		return newLeader.eng.IsLeader()
	})

	resp := post(t, newLeader.srv.URL+"/propose_block", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, r := range replicas {
		waitFor(t, 2*time.Second, func() bool {
			return r.eng.Chain().Len() == 2
		})
	}

	for _, r := range replicas {
		tip := r.eng.Chain().Tip()
		assert.Len(t, tip.Transactions, 3)
	}
}

// TestStaleLeaderProposeForbidden covers scenario D: a non-leader
// calling /propose_block is rejected with 403.
func TestStaleLeaderProposeForbidden(t *testing.T) {
	replicas := buildCluster(t, 4)
	resp := post(t, replicas[1].srv.URL+"/propose_block", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// TestDuplicateTransactionIsIdempotent covers scenario C.
func TestDuplicateTransactionIsIdempotent(t *testing.T) {
	replicas := buildCluster(t, 2)
	leader := replicas[0]

	for i := 0; i < 2; i++ {
		resp := post(t, leader.srv.URL+"/add_transaction", map[string]interface{}{
			"transaction": map[string]interface{}{"id": "t1", "data": "x"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	waitFor(t, time.Second, func() bool {
		return leader.eng.Chain().MempoolSize() == 1
	})
}

// TestTamperedProposedBlockHashRejected covers scenario B: a
// /receive_proposed_block body whose hash field has been flipped must
// be rejected with verdict "invalid" and must not advance the chain,
// even though every other field is self-consistent.
func TestTamperedProposedBlockHashRejected(t *testing.T) {
	replicas := buildCluster(t, 4)
	follower := replicas[1]

	tip := follower.eng.Chain().Tip()
	b := consensus.NewBlock(tip.Index+1, tip.Hash, nil, "0.500000", 1.0)

	payload := network.BlockToPayload(b)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	body["hash"] = "tampered" + body["hash"].(string)

	resp := post(t, follower.srv.URL+"/receive_proposed_block", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Verdict string `json:"verdict"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "invalid", decoded.Verdict)

	assert.Equal(t, uint64(1), follower.eng.Chain().Len())
}
