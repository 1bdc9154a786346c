// Package network implements the Peer Fabric of §4.5: best-effort,
// at-least-once delivery of the typed messages replicas exchange to
// run a round, over plain HTTP/JSON rather than the teacher's TCP/gob
// wire format.
package network

import (
	"encoding/json"

	"github.com/pocledger/pocledger/pkg/consensus"
)

// Kind names one of the message types carried over the fabric, per §6.
type Kind string

const (
	KindNewTransaction   Kind = "new_transaction"
	KindReceiveEntropy   Kind = "receive_entropy"
	KindBroadcastAggEnt  Kind = "broadcast_aggregate_entropy"
	KindProposeBlock     Kind = "propose_block"
	KindBlockValidation  Kind = "block_validation"
	KindBlockchainUpdate Kind = "blockchain_update"
	KindSetLeader        Kind = "set_leader"
)

// TransactionPayload carries a client transaction to a peer, verbatim
// as the submitting client sent it (§6, §4.4's canonical-serialization
// rule).
type TransactionPayload struct {
	Transaction json.RawMessage `json:"transaction"`
}

// EntropyPayload carries one replica's entropy sample to the leader.
type EntropyPayload struct {
	NodeID  consensus.NodeID `json:"node_id"`
	Entropy string           `json:"entropy"`
}

// AggregatePayload announces the round's aggregate entropy and the
// next leader, broadcast by the current leader after Aggregate(),
// matching the /receive_aggregate_entropy body of §6.
type AggregatePayload struct {
	AggregateEntropy string           `json:"aggregate_entropy"`
	NextLeader       consensus.NodeID `json:"next_leader"`
}

// BlockPayload carries a candidate or committed block. Transactions
// are encoded as the array of verbatim client JSON blobs, matching
// canonicalTransactions in pkg/consensus.
type BlockPayload struct {
	Index        uint64            `json:"index"`
	PreviousHash string            `json:"previous_hash"`
	Transactions []json.RawMessage `json:"transactions"`
	Entropy      string            `json:"entropy"`
	Timestamp    float64           `json:"timestamp"`
	Hash         string            `json:"hash"`
}

// ValidationPayload carries a follower's verdict on a proposed block
// back to every other replica for tallying, matching the
// /validate_block body of §6.
type ValidationPayload struct {
	BlockIndex uint64           `json:"block_index"`
	NodeID     consensus.NodeID `json:"node_id"`
	Status     string           `json:"status"`
	BlockData  BlockPayload     `json:"block_data"`
}

// LeaderPayload announces a leader out of band: used for the
// bootstrap announcement and the /set_leader body of §6.
type LeaderPayload struct {
	LeaderID consensus.NodeID `json:"leader_id"`
}

// BlockToPayload converts a block (proposed or committed) to its wire
// form.
func BlockToPayload(b *consensus.Block) BlockPayload {
	txns := make([]json.RawMessage, len(b.Transactions))
	for i, t := range b.Transactions {
		txns[i] = t.Raw
	}
	return BlockPayload{
		Index:        b.Index,
		PreviousHash: string(b.PreviousHash),
		Transactions: txns,
		Entropy:      b.Entropy,
		Timestamp:    b.Timestamp,
		Hash:         string(b.Hash),
	}
}

// BlockFromPayload reconstructs a candidate block from its wire form,
// preserving the sender's claimed Hash rather than recomputing it.
// Validation rule 4 of §4.4 (block.hash == H(block.fields)) only means
// something if the receiver checks the hash the sender actually sent;
// routing this through NewBlock would silently replace a tampered wire
// hash with a freshly computed one and make VerifyHash vacuously true.
func BlockFromPayload(p BlockPayload) (*consensus.Block, error) {
	txns := make([]consensus.Transaction, len(p.Transactions))
	for i, raw := range p.Transactions {
		t, err := consensus.ParseTransaction(raw)
		if err != nil {
			return nil, err
		}
		txns[i] = t
	}

	return &consensus.Block{
		Index:        p.Index,
		PreviousHash: consensus.Hash(p.PreviousHash),
		Transactions: txns,
		Entropy:      p.Entropy,
		Timestamp:    p.Timestamp,
		Hash:         consensus.Hash(p.Hash),
	}, nil
}
