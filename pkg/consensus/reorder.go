package consensus

import (
	"fmt"
	"strconv"
)

// NormalizeEntropy reformats agg to six decimal places, the first step
// of canonical reordering (§4.4). It fails if agg does not parse as a
// real number.
func NormalizeEntropy(agg string) (string, error) {
	f, err := strconv.ParseFloat(agg, 64)
	if err != nil {
		return "", newErr(BadEntropy, "normalize entropy: %v", err)
	}
	return fmt.Sprintf("%.6f", f), nil
}

// Reorder deterministically permutes txns using agg as the seed,
// per §4.4: normalize agg, derive a seed from SHA256(normalized_agg),
// and run a Fisher-Yates shuffle driven by MT19937 seeded from it. The
// same (txns, agg) pair always yields the same permutation on every
// replica, since the PRG and shuffle are part of the wire contract.
func Reorder(txns []Transaction, agg string) ([]Transaction, error) {
	normalized, err := NormalizeEntropy(agg)
	if err != nil {
		return nil, err
	}

	seed := seedFromHash(sha256Hex([]byte(normalized)))
	rng := newMT19937(seed)

	out := make([]Transaction, len(txns))
	copy(out, txns)
	for i := len(out) - 1; i >= 1; i-- {
		j := rng.randrange(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}
