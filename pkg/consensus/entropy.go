package consensus

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

const (
	henonA          = 1.4
	henonB          = 0.3
	henonIterations = 10
)

// NodeID identifies a replica, e.g. "node1".
type NodeID string

// GenerateEntropy produces one entropy sample by iterating the 2-D
// Henon map from a uniform random starting point, per §4.1. Generation
// is total: there is no failure mode. Not every starting point in
// [0,1)^2 lies in the attractor's basin; a starting point whose orbit
// ends outside the bounds checked by ValidateEntropy is discarded and
// a new one drawn, so every returned sample is well-formed.
func GenerateEntropy(rnd *rand.Rand) string {
	for {
		x, y := rnd.Float64(), rnd.Float64()
		for i := 0; i < henonIterations; i++ {
			x, y = 1-henonA*x*x+y, henonB*x
		}
		s := fmt.Sprintf("%.6f_%.6f", x, y)
		if ValidateEntropy(s) {
			return s
		}
	}
}

// ValidateEntropy reports whether s parses as two finite reals within
// the Henon map's attractor bounds.
func ValidateEntropy(s string) bool {
	x, y, ok := splitSample(s)
	if !ok {
		return false
	}
	return x >= -1.5 && x <= 1.5 && y >= -0.5 && y <= 0.5
}

func splitSample(s string) (x, y float64, ok bool) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	x, errX := strconv.ParseFloat(parts[0], 64)
	y, errY := strconv.ParseFloat(parts[1], 64)
	if errX != nil || errY != nil {
		return 0, 0, false
	}

	return x, y, true
}

// ToNumeric is the numeric projection to_numeric(s) = SHA256(s) mod
// 2^32 described in §4.1. It fails when s is empty, modeling "absent"
// input; every other string, including non-well-formed entropy
// samples, has a well-defined projection.
func ToNumeric(s string) (uint32, error) {
	if s == "" {
		return 0, newErr(BadEntropy, "to_numeric: input is absent")
	}
	return toUint32Mod(s), nil
}

// Aggregate computes the weighted mean of the numeric projections of
// contributions, formatted to six decimal places. Weight defaults to 1
// for any node_id absent from weights. The result is zero when the
// weights sum to zero; an empty contributions map is a NoContributions
// error.
func Aggregate(contributions map[NodeID]string, weights map[NodeID]float64) (string, error) {
	if len(contributions) == 0 {
		return "", newErr(NoContributions, "aggregate: no contributions")
	}

	var weightedSum, totalWeight float64
	for id, sample := range contributions {
		n, err := ToNumeric(sample)
		if err != nil {
			return "", err
		}

		w := 1.0
		if weights != nil {
			if v, ok := weights[id]; ok {
				w = v
			}
		}

		weightedSum += w * float64(n)
		totalWeight += w
	}

	var agg float64
	if totalWeight != 0 {
		agg = weightedSum / totalWeight
	}

	return fmt.Sprintf("%.6f", agg), nil
}

// NextLeader selects the contributor whose numeric projection is
// closest to the numeric projection of agg, per the (unweighted)
// Minkowski distance with p=2 described in §4.1. Ties are broken by
// lexicographic order of node_id.
func NextLeader(contributions map[NodeID]string, agg string) (NodeID, error) {
	if len(contributions) == 0 {
		return "", newErr(NoContributions, "next leader: no contributions")
	}

	aggNum, err := ToNumeric(agg)
	if err != nil {
		return "", err
	}

	ids := make([]NodeID, 0, len(contributions))
	for id := range contributions {
		ids = append(ids, id)
	}
	sortNodeIDs(ids)

	var best NodeID
	var bestDist float64
	haveBest := false
	for _, id := range ids {
		n, err := ToNumeric(contributions[id])
		if err != nil {
			return "", err
		}

		d := minkowskiDistance(n, aggNum, 2)
		if !haveBest || d < bestDist {
			best = id
			bestDist = d
			haveBest = true
		}
	}

	return best, nil
}

// minkowskiDistance computes |a-b|^p, the distance used for next-leader
// selection in §4.1.
func minkowskiDistance(a, b uint32, p int) float64 {
	var delta float64
	if a > b {
		delta = float64(a - b)
	} else {
		delta = float64(b - a)
	}

	result := 1.0
	for i := 0; i < p; i++ {
		result *= delta
	}
	return result
}

func sortNodeIDs(ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
