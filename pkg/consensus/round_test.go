package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(self NodeID, size int) Config {
	cfg := DefaultConfig(self, size)
	return cfg
}

func TestAddContributionRejectsNonLeader(t *testing.T) {
	r := NewRound(testConfig("node2", 4), "node1")
	assertKind(t, r.AddContribution("node3", "0.100000_0.200000"), NotLeader)
}

func TestLeaderIgnoresOwnContributionByDefault(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	require.NoError(t, r.AddContribution("node1", "0.100000_0.200000"))
	_, _, err := r.Aggregate()
	assertKind(t, err, NoContributions)
}

func TestAggregateRequiresAtLeastOneContribution(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	_, _, err := r.Aggregate()
	assertKind(t, err, NoContributions)
}

func TestAggregateSelectsNextLeaderAndUpdatesView(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	require.NoError(t, r.AddContribution("node2", "0.100000_0.200000"))
	require.NoError(t, r.AddContribution("node3", "0.300000_0.400000"))
	require.NoError(t, r.AddContribution("node4", "0.500000_0.300000"))

	_, next, err := r.Aggregate()
	require.NoError(t, err)
	assert.Equal(t, next, r.Leader())
	assert.Equal(t, next == "node1", r.IsLeader())
}

func TestMirrorLeaderUpdatesFollowerView(t *testing.T) {
	r := NewRound(testConfig("node2", 4), "node1")
	require.NoError(t, r.MirrorLeader("0.500000", "node2"))
	assert.Equal(t, NodeID("node2"), r.Leader())
	assert.True(t, r.IsLeader())
}

func TestProposeRequiresLeader(t *testing.T) {
	r := NewRound(testConfig("node2", 4), "node1")
	c := newTestChain(t)
	_, err := r.Propose(c, 1.0)
	assertKind(t, err, NotLeader)
}

func TestAddVerdictSettlesOnMajorityAndIsIdempotent(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	b := Genesis()

	out, err := r.AddVerdict(1, "node1", VerdictValid, b)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = r.AddVerdict(1, "node2", VerdictValid, b)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = r.AddVerdict(1, "node3", VerdictValid, b)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Commit)
	assert.Len(t, out.Ballots, 3)

	// A fourth, late ballot for the same index is a no-op.
	out, err = r.AddVerdict(1, "node4", VerdictInvalid, b)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestAddVerdictRejectsOnInvalidMajority(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	b := Genesis()

	_, _ = r.AddVerdict(1, "node1", VerdictInvalid, b)
	_, _ = r.AddVerdict(1, "node2", VerdictInvalid, b)
	out, err := r.AddVerdict(1, "node3", VerdictInvalid, b)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.Commit)
}

func TestAddVerdictDropsDuplicateFromSameNode(t *testing.T) {
	r := NewRound(testConfig("node1", 4), "node1")
	b := Genesis()

	_, _ = r.AddVerdict(1, "node1", VerdictValid, b)
	out, err := r.AddVerdict(1, "node1", VerdictValid, b)
	require.NoError(t, err)
	assert.Nil(t, out)
}
