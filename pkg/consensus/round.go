package consensus

import (
	lru "github.com/hashicorp/golang-lru"
	log "github.com/helinwang/log15"
)

// Phase is the Round Coordinator's state machine position for the
// current round, per §4.3: IDLE -> CONTRIBUTING -> LEADER_KNOWN ->
// PROPOSED -> COMMITTED -> IDLE.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseContributing
	PhaseLeaderKnown
	PhaseProposed
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseContributing:
		return "contributing"
	case PhaseLeaderKnown:
		return "leader_known"
	case PhaseProposed:
		return "proposed"
	case PhaseCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Verdict is a follower's judgement of a proposed block.
type Verdict string

const (
	VerdictValid   Verdict = "valid"
	VerdictInvalid Verdict = "invalid"
)

// Ballot is one replica's recorded verdict on a proposed block.
type Ballot struct {
	Node    NodeID
	Verdict Verdict
}

// Outcome reports the result of a tally reaching quorum, per the
// majority rule of §4.4 (open question 4: denominator is k). Ballots
// holds every vote that contributed to the tally, so callers can
// update reputation for each voter, not just the one that tipped it.
type Outcome struct {
	Index   uint64
	Commit  bool
	Block   *Block
	Ballots []Ballot
}

// processedCap bounds the LRU of settled block indices, following the
// teacher's collector.go pattern of bounding membership sets with
// hashicorp/golang-lru rather than letting a map grow without limit
// for the lifetime of a long-running replica.
const processedCap = 4096

// Round is the Round Coordinator of §4.3: it exclusively owns round
// state (contributions, pending proposal, validation tally). It is
// not safe for concurrent use on its own; pkg/engine serializes access
// to it behind the single cluster-local mutex described in §5, the
// same way Chain's own mutex only guards against direct Admission API
// races rather than substituting for that outer lock.
type Round struct {
	cfg Config

	leader   NodeID
	isLeader bool
	phase    Phase

	contributions map[NodeID]string
	aggregate     string

	pending *Block

	tally     map[uint64][]Ballot
	processed *lru.Cache
}

// NewRound creates a Round Coordinator seeded with the bootstrap
// leader, per §4.2's bootstrap contract.
func NewRound(cfg Config, bootstrapLeader NodeID) *Round {
	processed, err := lru.New(processedCap)
	if err != nil {
		// only fails for a non-positive size, which processedCap never is
		panic(err)
	}
	return &Round{
		cfg:           cfg,
		leader:        bootstrapLeader,
		isLeader:      bootstrapLeader == cfg.Self,
		phase:         PhaseIdle,
		contributions: make(map[NodeID]string),
		tally:         make(map[uint64][]Ballot),
		processed:     processed,
	}
}

// IsLeader reports whether this replica believes itself to be leader
// for the current round.
func (r *Round) IsLeader() bool {
	return r.isLeader
}

// Leader returns the node_id this replica believes is leader.
func (r *Round) Leader() NodeID {
	return r.leader
}

// Phase returns the current round phase.
func (r *Round) Phase() Phase {
	return r.phase
}

// AddContribution records a follower's entropy sample, per
// receive_entropy of §6. Leader-only: a follower calling this is a
// caller bug, surfaced as NotLeader so the Admission API can turn it
// into the right HTTP status.
func (r *Round) AddContribution(node NodeID, entropy string) error {
	if !r.isLeader {
		return newErr(NotLeader, "receive_entropy: %s is not leader", r.cfg.Self)
	}
	if !ValidateEntropy(entropy) {
		return newErr(BadEntropy, "receive_entropy: malformed sample from %s", node)
	}
	if node == r.cfg.Self && !r.cfg.LeaderContributes {
		log.Debug("ignoring leader's own contribution", "node", node)
		return nil
	}

	r.contributions[node] = entropy
	r.phase = PhaseContributing
	return nil
}

// Aggregate folds every recorded contribution into the round's
// aggregate entropy and selects the next leader, per aggregate() of
// §4.3. Leader-only. Contributions are discarded once folded; a
// sample is only ever used for the round it was collected in.
func (r *Round) Aggregate() (agg string, next NodeID, err error) {
	if !r.isLeader {
		return "", "", newErr(NotLeader, "aggregate: %s is not leader", r.cfg.Self)
	}
	if len(r.contributions) == 0 {
		return "", "", newErr(NoContributions, "aggregate: no contributions recorded this round")
	}

	agg, err = Aggregate(r.contributions, r.cfg.Weights)
	if err != nil {
		return "", "", err
	}
	next, err = NextLeader(r.contributions, agg)
	if err != nil {
		return "", "", err
	}

	r.aggregate = agg
	r.contributions = make(map[NodeID]string)
	r.applyLeader(next)
	r.phase = PhaseLeaderKnown

	log.Info("aggregated entropy", "round_leader", r.cfg.Self, "agg", agg, "next_leader", next)
	return agg, next, nil
}

// MirrorLeader applies a broadcast_aggregate_entropy message on a
// follower: adopt the announced aggregate and next leader without
// having computed them locally, per §6.
func (r *Round) MirrorLeader(agg string, next NodeID) error {
	if _, err := NormalizeEntropy(agg); err != nil {
		return newErr(BadEntropy, "broadcast_aggregate_entropy: malformed aggregate")
	}
	r.aggregate = agg
	r.applyLeader(next)
	r.phase = PhaseLeaderKnown
	return nil
}

// SetLeader applies a set_leader message, used for the bootstrap
// leader announcement and for the out-of-band override in §6.
func (r *Round) SetLeader(next NodeID) {
	r.applyLeader(next)
}

func (r *Round) applyLeader(next NodeID) {
	r.leader = next
	r.isLeader = next == r.cfg.Self
}

// Propose builds a candidate block from the chain's current mempool
// using the round's aggregate entropy as the reordering seed, per
// propose() of §4.3. New-leader-only.
func (r *Round) Propose(chain *Chain, now float64) (*Block, error) {
	if !r.isLeader {
		return nil, newErr(NotLeader, "propose: %s is not leader", r.cfg.Self)
	}
	if r.aggregate == "" {
		return nil, newErr(NoContributions, "propose: no aggregate entropy available this round")
	}

	tip := chain.Tip()
	txns := chain.Take(r.cfg.ProposalLimit)
	b, err := BuildProposal(txns, r.aggregate, tip.Index+1, tip.Hash, now)
	if err != nil {
		return nil, err
	}

	r.pending = b
	r.phase = PhaseProposed
	return b, nil
}

// ReceiveProposal validates an incoming propose_block message against
// this replica's own mempool and chain tip, per §4.4, and returns the
// resulting verdict. The verdict is not added to this replica's own
// tally; AddVerdict counts only ballots passed to it by the caller.
func (r *Round) ReceiveProposal(chain *Chain, candidate *Block) Verdict {
	snapshot := chain.Take(r.cfg.ProposalLimit)
	tip := chain.Tip()

	if err := ValidateBlock(candidate, snapshot, tip); err != nil {
		log.Info("rejecting proposed block", "index", candidate.Index, "reason", err)
		r.pending = candidate
		r.phase = PhaseProposed
		return VerdictInvalid
	}

	r.pending = candidate
	r.phase = PhaseProposed
	return VerdictValid
}

// AddVerdict records a block_validation ballot from node for the
// block at index, per tally() of §4.3. It returns a non-nil Outcome
// once quorum is reached in either direction; until then it returns
// nil, nil. Duplicate ballots for an index that has already settled
// are a silent no-op, matching the idempotence of processed_blocks.
func (r *Round) AddVerdict(index uint64, node NodeID, verdict Verdict, block *Block) (*Outcome, error) {
	if r.processed.Contains(index) {
		return nil, nil
	}

	ballots := r.tally[index]
	for _, b := range ballots {
		if b.Node == node {
			return nil, nil
		}
	}
	ballots = append(ballots, Ballot{Node: node, Verdict: verdict})
	r.tally[index] = ballots

	var valid, invalid int
	for _, b := range ballots {
		switch b.Verdict {
		case VerdictValid:
			valid++
		case VerdictInvalid:
			invalid++
		}
	}

	quorum := r.cfg.Quorum()
	switch {
	case valid >= quorum:
		r.settle(index)
		return &Outcome{Index: index, Commit: true, Block: block, Ballots: ballots}, nil
	case invalid >= quorum:
		r.settle(index)
		return &Outcome{Index: index, Commit: false, Block: block, Ballots: ballots}, nil
	default:
		return nil, nil
	}
}

func (r *Round) settle(index uint64) {
	r.processed.Add(index, true)
	delete(r.tally, index)
}

// EndRound resets per-round state once a block has committed or been
// rejected, ready for the next CONTRIBUTING phase. The leader elected
// by the last Aggregate/MirrorLeader carries forward unchanged.
func (r *Round) EndRound() {
	r.contributions = make(map[NodeID]string)
	r.aggregate = ""
	r.pending = nil
	r.phase = PhaseCommitted
}

// Pending returns the block currently awaiting validation, if any.
func (r *Round) Pending() *Block {
	return r.pending
}
