package consensus

import "time"

// Config is the static, replica-local configuration the Round
// Coordinator and Peer Fabric are parameterized by. It replaces the
// Python reference's module-level globals with an explicit value
// threaded through construction, per the Design Notes' guidance on
// global singletons (§9).
type Config struct {
	// Self is this replica's node_id.
	Self NodeID

	// ClusterSize is k, the total number of configured replicas.
	ClusterSize int

	// LeaderContributes resolves open question 1 of §9: whether the
	// leader's own entropy sample counts toward aggregation. Default
	// false matches the reference's receive_entropy behavior, which
	// only ever stores samples received from other nodes.
	LeaderContributes bool

	// ProposalLimit is the mempool take() size used both by the
	// proposer and by followers re-deriving the canonical order, per
	// §4.3's take(50).
	ProposalLimit int

	// Weights are optional per-node aggregation weights; nodes absent
	// from the map default to weight 1 (§4.1).
	Weights map[NodeID]float64

	// UnicastRetries and UnicastBackoff bound retry of follower-to-leader
	// and leader-to-follower point-to-point sends (§4.5).
	UnicastRetries int
	UnicastBackoff time.Duration

	// BootstrapBackoff is the (unbounded) retry interval for the
	// bootstrap leader announcement broadcast (§4.5).
	BootstrapBackoff time.Duration

	// SendTimeout bounds a single outbound peer send (§5).
	SendTimeout time.Duration
}

// Quorum returns the strict majority of all k replicas required to
// commit or reject a proposed block, resolving open question 4 of §9:
// the denominator is k (leader included), not len(peers).
func (c Config) Quorum() int {
	return c.ClusterSize/2 + 1
}

// DefaultConfig returns a Config with the defaults named in §4.5 and
// §4.3.
func DefaultConfig(self NodeID, clusterSize int) Config {
	return Config{
		Self:             self,
		ClusterSize:      clusterSize,
		ProposalLimit:    50,
		UnicastRetries:   3,
		UnicastBackoff:   2 * time.Second,
		BootstrapBackoff: 5 * time.Second,
		SendTimeout:      5 * time.Second,
	}
}
