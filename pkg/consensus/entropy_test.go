package consensus

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEntropyWellFormed(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		s := GenerateEntropy(rnd)
		assert.True(t, ValidateEntropy(s), "sample %q out of bounds", s)
	}
}

func TestValidateEntropyRejectsMalformed(t *testing.T) {
	data := []struct {
		sample string
		valid  bool
	}{
		{"0.100000_0.200000", true},
		{"not_a_number", false},
		{"1.000000", false},
		{"2.000000_0.000000", false}, // x out of bounds
		{"0.000000_1.000000", false}, // y out of bounds
	}

	for _, d := range data {
		assert.Equal(t, d.valid, ValidateEntropy(d.sample), d.sample)
	}
}

func TestToNumericDeterministic(t *testing.T) {
	a, err := ToNumeric("0.100000_0.200000")
	require.NoError(t, err)
	b, err := ToNumeric("0.100000_0.200000")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = ToNumeric("")
	assert.Error(t, err)
}

func TestAggregateIsWeightedMean(t *testing.T) {
	contributions := map[NodeID]string{
		"node2": "0.100000_0.200000",
		"node3": "0.300000_0.400000",
	}

	agg, err := Aggregate(contributions, nil)
	require.NoError(t, err)

	n2, _ := ToNumeric(contributions["node2"])
	n3, _ := ToNumeric(contributions["node3"])
	want := (float64(n2) + float64(n3)) / 2

	got, err := strconv.ParseFloat(agg, 64)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1)
}

func TestAggregateNoContributions(t *testing.T) {
	_, err := Aggregate(nil, nil)
	assertKind(t, err, NoContributions)
}

func TestNextLeaderPicksClosestAndBreaksTiesLexicographically(t *testing.T) {
	contributions := map[NodeID]string{
		"node2": "0.100000_0.200000",
		"node3": "0.300000_0.400000",
		"node4": "0.500000_0.600000",
	}
	agg, err := Aggregate(contributions, nil)
	require.NoError(t, err)

	next, err := NextLeader(contributions, agg)
	require.NoError(t, err)
	assert.Contains(t, []NodeID{"node2", "node3", "node4"}, next)

	aggNum, err := ToNumeric(agg)
	require.NoError(t, err)
	nextNum, err := ToNumeric(contributions[next])
	require.NoError(t, err)
	for id, sample := range contributions {
		n, err := ToNumeric(sample)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, minkowskiDistance(n, aggNum, 2), minkowskiDistance(nextNum, aggNum, 2), id)
	}

	// Identical samples project to the same number, so node2 and node3
	// tie and the lexicographically smaller node_id wins.
	tied := map[NodeID]string{
		"node3": "0.100000_0.200000",
		"node2": "0.100000_0.200000",
		"node4": "0.300000_0.400000",
	}
	tiedAgg, err := Aggregate(tied, nil)
	require.NoError(t, err)
	tiedNext, err := NextLeader(tied, tiedAgg)
	require.NoError(t, err)
	assert.Equal(t, NodeID("node2"), tiedNext)
}

func assertKind(t *testing.T, err error, k Kind) {
	t.Helper()
	require.Error(t, err)
	cerr, ok := err.(*Error)
	require.True(t, ok, "expected *Error, got %T", err)
	assert.Equal(t, k, cerr.Kind)
}
