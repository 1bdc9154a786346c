// Package engine wires the Chain Store, Round Coordinator and Peer
// Fabric together behind a single cluster-local mutex, per §5: every
// state transition driven by an inbound Admission API call or Peer
// Fabric message takes this lock, mutates Chain/Round, and only then
// releases it before doing any outbound send.
package engine

import (
	"context"
	"math/rand"
	"sync"

	log "github.com/helinwang/log15"

	"github.com/pocledger/pocledger/pkg/consensus"
	"github.com/pocledger/pocledger/pkg/network"
)

const (
	reputationAlignmentDelta = 5
	reputationLeaderDelta    = 10
)

// Engine is this replica's whole consensus instance: the explicit,
// constructed object in place of the package-level singletons a
// less careful port would reach for.
type Engine struct {
	cfg consensus.Config

	// mu is the single cluster-local mutex of §5. It guards chain and
	// round exclusively; it is never held across a Fabric call.
	mu     sync.Mutex
	chain  *consensus.Chain
	round  *consensus.Round
	fabric *network.Fabric

	now func() float64
}

// New builds an Engine around a verified genesis block and a static
// peer map. bootstrapLeader is the leader every replica agrees on at
// boot, before the first round of entropy contribution (§4.2).
func New(cfg consensus.Config, genesis *consensus.Block, peers map[consensus.NodeID]string, bootstrapLeader consensus.NodeID, now func() float64) (*Engine, error) {
	chain, err := consensus.NewChain(genesis)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:    cfg,
		chain:  chain,
		round:  consensus.NewRound(cfg, bootstrapLeader),
		fabric: network.NewFabric(cfg, peers),
		now:    now,
	}, nil
}

// Chain exposes the chain store for read-only reporting endpoints
// (GET /blockchain, GET /status).
func (e *Engine) Chain() *consensus.Chain { return e.chain }

// IsLeader reports whether this replica is the round's leader.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.IsLeader()
}

// Leader returns the node_id this replica believes is leader.
func (e *Engine) Leader() consensus.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.Leader()
}

// Phase returns the round's current phase, for GET /status.
func (e *Engine) Phase() consensus.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.Phase()
}

// SubmitTransaction adds a transaction to the mempool, per POST
// /add_transaction of §6. It does not require the caller to be leader.
func (e *Engine) SubmitTransaction(raw []byte) error {
	tx, err := consensus.ParseTransaction(raw)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.chain.Submit(tx)
	e.mu.Unlock()
	return nil
}

// BroadcastTransaction relays a just-admitted transaction to every
// peer, so a client only needs to reach one replica, per §4.5.
func (e *Engine) BroadcastTransaction(ctx context.Context, raw []byte) {
	e.fabric.Broadcast(ctx, network.KindNewTransaction, network.TransactionPayload{Transaction: raw})
}

// ContributeEntropy generates this replica's entropy sample and sends
// it to the believed leader, per POST /send_entropy of §6. Returns the
// sample generated, for the API response.
func (e *Engine) ContributeEntropy(ctx context.Context, rnd *rand.Rand) (string, error) {
	e.mu.Lock()
	leader := e.round.Leader()
	isLeader := e.round.IsLeader()
	e.mu.Unlock()

	if isLeader && !e.cfg.LeaderContributes {
		return "", &consensus.Error{Kind: consensus.NotLeader, Msg: "contribute_entropy: leader does not send to itself"}
	}

	sample := consensus.GenerateEntropy(rnd)
	if err := e.fabric.Unicast(ctx, leader, network.KindReceiveEntropy, network.EntropyPayload{
		NodeID:  e.cfg.Self,
		Entropy: sample,
	}); err != nil {
		return "", err
	}
	return sample, nil
}

// ReceiveEntropy handles an inbound receive_entropy message, per §6.
func (e *Engine) ReceiveEntropy(node consensus.NodeID, entropy string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.AddContribution(node, entropy)
}

// AggregateAndBroadcast runs aggregate() and fans the result out to
// every peer, per POST /aggregate_entropy of §6. The lock is released
// before the broadcast, which only touches the network.
func (e *Engine) AggregateAndBroadcast(ctx context.Context) (string, consensus.NodeID, error) {
	e.mu.Lock()
	agg, next, err := e.round.Aggregate()
	e.mu.Unlock()
	if err != nil {
		return "", "", err
	}

	e.fabric.Broadcast(ctx, network.KindBroadcastAggEnt, network.AggregatePayload{
		AggregateEntropy: agg,
		NextLeader:       next,
	})
	return agg, next, nil
}

// ReceiveAggregate handles an inbound broadcast_aggregate_entropy
// message, per §6.
func (e *Engine) ReceiveAggregate(agg string, next consensus.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.MirrorLeader(agg, next)
}

// ReceiveSetLeader handles an out-of-band set_leader message, used
// both for the bootstrap announcement and manual override (§6).
func (e *Engine) ReceiveSetLeader(next consensus.NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round.SetLeader(next)
}

// BroadcastSetLeader fans a set_leader override out to every peer,
// used by POST /elect_leader.
func (e *Engine) BroadcastSetLeader(ctx context.Context, next consensus.NodeID) {
	e.fabric.Broadcast(ctx, network.KindSetLeader, network.LeaderPayload{LeaderID: next})
}

// PeerIDs returns the known peer node_ids, excluding self.
func (e *Engine) PeerIDs() []consensus.NodeID {
	return e.fabric.Peers()
}

// PeerAddrs returns the known peer base URLs, for GET /peers.
func (e *Engine) PeerAddrs() []string {
	return e.fabric.PeerAddrs()
}

// AnnounceBootstrapLeader retries the bootstrap leader announcement
// to one peer until it is acknowledged, per §4.5. Callers fan this
// out to every peer at startup; it blocks its own goroutine.
func (e *Engine) AnnounceBootstrapLeader(ctx context.Context, to consensus.NodeID, leader consensus.NodeID) error {
	return e.fabric.AnnounceLeaderUntilAcked(ctx, to, leader)
}

// ProposeAndBroadcast builds a candidate block and fans it out for
// validation, per POST /propose_block of §6.
func (e *Engine) ProposeAndBroadcast(ctx context.Context) (*consensus.Block, error) {
	e.mu.Lock()
	b, err := e.round.Propose(e.chain, e.now())
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.fabric.Broadcast(ctx, network.KindProposeBlock, network.BlockToPayload(b))
	return b, nil
}

// ReceiveProposal validates an inbound propose_block message and
// broadcasts this replica's verdict back to the cluster, per §6. The
// verdict carries the candidate block itself, since a late-joining
// peer's tally may not have seen propose_block directly.
func (e *Engine) ReceiveProposal(ctx context.Context, b *consensus.Block) consensus.Verdict {
	e.mu.Lock()
	verdict := e.round.ReceiveProposal(e.chain, b)
	e.mu.Unlock()

	e.fabric.Broadcast(ctx, network.KindBlockValidation, network.ValidationPayload{
		BlockIndex: b.Index,
		NodeID:     e.cfg.Self,
		Status:     string(verdict),
		BlockData:  network.BlockToPayload(b),
	})
	return verdict
}

// ReceiveVerdict records an inbound block_validation ballot, per §6.
// Once quorum is reached it applies the outcome: appending the block
// on commit, discarding it on rejection, adjusting reputations either
// way, and broadcasting the resulting chain update.
func (e *Engine) ReceiveVerdict(ctx context.Context, index uint64, node consensus.NodeID, verdict consensus.Verdict, b *consensus.Block) error {
	e.mu.Lock()
	outcome, err := e.round.AddVerdict(index, node, verdict, b)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if outcome == nil {
		e.mu.Unlock()
		return nil
	}

	leader := e.round.Leader()
	var appendErr error
	if outcome.Commit {
		appendErr = e.chain.Append(outcome.Block)
	}
	e.adjustReputationLocked(leader, outcome)
	e.round.EndRound()
	e.mu.Unlock()

	if outcome.Commit {
		if appendErr != nil {
			log.Error("failed to append committed block", "index", index, "err", appendErr)
			return appendErr
		}
		e.fabric.Broadcast(ctx, network.KindBlockchainUpdate, network.BlockToPayload(outcome.Block))
		log.Info("round committed", "index", index)
	} else {
		log.Info("round rejected", "index", index)
	}
	return nil
}

// adjustReputationLocked applies the reputation rule of the
// reputation tracker to every voter that contributed to a settled
// tally: a replica's score moves toward or away depending on whether
// its own ballot matched the outcome, and the leader's score moves
// based on whether its proposal was accepted. Must be called with mu
// held.
func (e *Engine) adjustReputationLocked(leader consensus.NodeID, outcome *consensus.Outcome) {
	for _, b := range outcome.Ballots {
		alignedWithMajority := (b.Verdict == consensus.VerdictValid) == outcome.Commit
		if alignedWithMajority {
			e.chain.AdjustReputation(b.Node, reputationAlignmentDelta)
		} else {
			e.chain.AdjustReputation(b.Node, -reputationAlignmentDelta)
		}
	}

	if outcome.Commit {
		e.chain.AdjustReputation(leader, reputationLeaderDelta)
	} else {
		e.chain.AdjustReputation(leader, -reputationLeaderDelta)
	}
}

// ReceiveChainUpdate applies an inbound blockchain_update message,
// letting a replica catch up on a block it did not itself tally, per
// §6.
func (e *Engine) ReceiveChainUpdate(b *consensus.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chain.Append(b)
}
