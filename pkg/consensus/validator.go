package consensus

import (
	"bytes"
	"strconv"
)

// BuildProposal assembles a candidate block from the mempool snapshot
// txns, reordered deterministically by agg, per the propose() contract
// of §4.3. The caller is responsible for taking the snapshot (Chain.Take)
// and supplying index/prevHash/now.
func BuildProposal(txns []Transaction, agg string, index uint64, prevHash Hash, now float64) (*Block, error) {
	if len(txns) == 0 {
		return nil, newErr(NoTransactions, "propose: mempool is empty")
	}

	ordered, err := Reorder(txns, agg)
	if err != nil {
		return nil, err
	}

	return NewBlock(index, prevHash, ordered, agg, now), nil
}

// ValidateBlock runs the four validation rules of §4.4 against a
// candidate block, given the validator's own mempool snapshot and
// chain tip. It is a pure function: it never mutates the chain.
func ValidateBlock(candidate *Block, mempoolSnapshot []Transaction, tip *Block) error {
	if candidate.PreviousHash != tip.Hash {
		return newErr(PrevHashMismatch, "validate: previous_hash %q does not match tip %q", candidate.PreviousHash, tip.Hash)
	}

	if _, err := strconv.ParseFloat(candidate.Entropy, 64); err != nil {
		return newErr(BadEntropy, "validate: entropy %q does not parse as a real", candidate.Entropy)
	}

	expected, err := Reorder(mempoolSnapshot, candidate.Entropy)
	if err != nil {
		return err
	}

	if !bytes.Equal(canonicalTransactions(expected), canonicalTransactions(candidate.Transactions)) {
		return newErr(TxOrderMismatch, "validate: transaction order does not match the reorder of the local mempool")
	}

	if !candidate.VerifyHash() {
		return newErr(HashMismatch, "validate: block hash does not match its fields")
	}

	return nil
}
