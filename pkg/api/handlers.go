package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/pocledger/pocledger/pkg/consensus"
	"github.com/pocledger/pocledger/pkg/network"
)

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transaction == nil {
		writeMalformed(w, "transaction data missing")
		return
	}

	if err := s.eng.SubmitTransaction(req.Transaction); err != nil {
		writeError(w, err)
		return
	}

	s.eng.BroadcastTransaction(r.Context(), req.Transaction)
	writeJSON(w, http.StatusOK, messageResponse{Message: "transaction added and broadcasted successfully"})
}

func (s *Server) handleTransactionPool(w http.ResponseWriter, r *http.Request) {
	txns := s.eng.Chain().Take(s.eng.Chain().MempoolSize())
	writeJSON(w, http.StatusOK, map[string]interface{}{"transaction_pool": rawTransactions(txns)})
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"peers": s.eng.PeerAddrs()})
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	blocks := s.eng.Chain().Blocks()
	out := make([]blockJSON, len(blocks))
	for i, b := range blocks {
		out[i] = toBlockJSON(b)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"blockchain": out})
}

func (s *Server) handleGetLeader(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"leader": s.eng.Leader()})
}

func (s *Server) handleSetLeader(w http.ResponseWriter, r *http.Request) {
	var req setLeaderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LeaderID == "" {
		writeMalformed(w, "leader_id missing")
		return
	}

	s.eng.ReceiveSetLeader(consensus.NodeID(req.LeaderID))
	writeJSON(w, http.StatusOK, messageResponse{Message: "leader set"})
}

func (s *Server) handleElectLeader(w http.ResponseWriter, r *http.Request) {
	var req electLeaderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewLeaderID == "" {
		writeMalformed(w, "new_leader_id missing")
		return
	}

	if !s.eng.IsLeader() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not leader"})
		return
	}

	next := consensus.NodeID(req.NewLeaderID)
	s.eng.ReceiveSetLeader(next)
	s.eng.BroadcastSetLeader(r.Context(), next)
	writeJSON(w, http.StatusOK, messageResponse{Message: "leader elected"})
}

func (s *Server) handleSendEntropy(w http.ResponseWriter, r *http.Request) {
	if s.eng.IsLeader() {
		writeMalformed(w, "leader does not send entropy to itself")
		return
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	sample, err := s.eng.ContributeEntropy(r.Context(), rnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entropy": sample})
}

func (s *Server) handleReceiveEntropy(w http.ResponseWriter, r *http.Request) {
	var req receiveEntropyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.Entropy == "" {
		writeMalformed(w, "node_id or entropy missing")
		return
	}

	if err := s.eng.ReceiveEntropy(consensus.NodeID(req.NodeID), req.Entropy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "entropy recorded"})
}

func (s *Server) handleAggregateEntropy(w http.ResponseWriter, r *http.Request) {
	agg, next, err := s.eng.AggregateAndBroadcast(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"aggregate_entropy": agg, "next_leader": next})
}

func (s *Server) handleReceiveAggregateEntropy(w http.ResponseWriter, r *http.Request) {
	var req receiveAggregateEntropyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AggregateEntropy == "" || req.NextLeader == "" {
		writeMalformed(w, "aggregate_entropy or next_leader missing")
		return
	}

	if err := s.eng.ReceiveAggregate(req.AggregateEntropy, consensus.NodeID(req.NextLeader)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "aggregate mirrored"})
}

func (s *Server) handleProposeBlock(w http.ResponseWriter, r *http.Request) {
	if !s.eng.IsLeader() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not leader"})
		return
	}

	b, err := s.eng.ProposeAndBroadcast(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockJSON(b))
}

func (s *Server) handleReceiveProposedBlock(w http.ResponseWriter, r *http.Request) {
	var req blockJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMalformed(w, "malformed block record")
		return
	}

	b, err := network.BlockFromPayload(toBlockPayload(req))
	if err != nil {
		writeError(w, err)
		return
	}

	verdict := s.eng.ReceiveProposal(r.Context(), b)
	writeJSON(w, http.StatusOK, map[string]interface{}{"verdict": verdict})
}

func (s *Server) handleValidateBlock(w http.ResponseWriter, r *http.Request) {
	var req validateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
		writeMalformed(w, "block_index, node_id or status missing")
		return
	}
	if req.Status != string(consensus.VerdictValid) && req.Status != string(consensus.VerdictInvalid) {
		writeMalformed(w, "status must be valid or invalid")
		return
	}

	b, err := network.BlockFromPayload(toBlockPayload(req.BlockData))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.eng.ReceiveVerdict(r.Context(), req.BlockIndex, consensus.NodeID(req.NodeID), consensus.Verdict(req.Status), b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "verdict recorded"})
}

func (s *Server) handleBlockchainUpdate(w http.ResponseWriter, r *http.Request) {
	var req blockJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMalformed(w, "malformed block record")
		return
	}

	b, err := network.BlockFromPayload(toBlockPayload(req))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.eng.ReceiveChainUpdate(b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "block accepted"})
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"reputation": s.eng.Chain().Reputation()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"phase":        s.eng.Phase().String(),
		"leader":       s.eng.Leader(),
		"is_leader":    s.eng.IsLeader(),
		"chain_height": s.eng.Chain().Len(),
		"mempool_size": s.eng.Chain().MempoolSize(),
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
		writeMalformed(w, "from or to missing")
		return
	}

	if err := s.ledger.Transfer(req.From, req.To, req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "transfer applied"})
}

func toBlockJSON(b *consensus.Block) blockJSON {
	p := network.BlockToPayload(b)
	return blockJSON{
		Index:        p.Index,
		PreviousHash: p.PreviousHash,
		Transactions: p.Transactions,
		Entropy:      p.Entropy,
		Timestamp:    p.Timestamp,
		Hash:         p.Hash,
	}
}

func toBlockPayload(b blockJSON) network.BlockPayload {
	return network.BlockPayload{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Transactions: b.Transactions,
		Entropy:      b.Entropy,
		Timestamp:    b.Timestamp,
		Hash:         b.Hash,
	}
}

func rawTransactions(txns []consensus.Transaction) []json.RawMessage {
	out := make([]json.RawMessage, len(txns))
	for i, t := range txns {
		out[i] = t.Raw
	}
	return out
}
