package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildProposalFailsOnEmptyMempool(t *testing.T) {
	_, err := BuildProposal(nil, "0.500000", 1, ZeroHash, 1.0)
	assertKind(t, err, NoTransactions)
}

func TestValidateBlockAcceptsFaithfulReconstruction(t *testing.T) {
	txns := []Transaction{mustTxn(t, "t1"), mustTxn(t, "t2")}
	tip := Genesis()

	b, err := BuildProposal(txns, "0.500000", tip.Index+1, tip.Hash, 1.0)
	require.NoError(t, err)

	require.NoError(t, ValidateBlock(b, txns, tip))
}

func TestValidateBlockDetectsPrevHashMismatch(t *testing.T) {
	txns := []Transaction{mustTxn(t, "t1")}
	tip := Genesis()

	b, err := BuildProposal(txns, "0.500000", tip.Index+1, Hash("not-the-tip"), 1.0)
	require.NoError(t, err)

	assertKind(t, ValidateBlock(b, txns, tip), PrevHashMismatch)
}

func TestValidateBlockDetectsTxOrderMismatch(t *testing.T) {
	txns := []Transaction{mustTxn(t, "t1"), mustTxn(t, "t2"), mustTxn(t, "t3")}
	tip := Genesis()

	b, err := BuildProposal(txns, "1.000000", tip.Index+1, tip.Hash, 1.0)
	require.NoError(t, err)

	// Validator's mempool has the same ids but a different submission
	// order, which the entropy-keyed reorder will not reproduce unless
	// the insertion order matches.
	reversed := []Transaction{txns[2], txns[1], txns[0]}
	assertKind(t, ValidateBlock(b, reversed, tip), TxOrderMismatch)
}

func TestValidateBlockDetectsTamperedHash(t *testing.T) {
	txns := []Transaction{mustTxn(t, "t1")}
	tip := Genesis()

	b, err := BuildProposal(txns, "0.500000", tip.Index+1, tip.Hash, 1.0)
	require.NoError(t, err)
	b.Hash = Hash("tampered")

	assertKind(t, ValidateBlock(b, txns, tip), HashMismatch)
}

func TestValidateBlockDetectsBadEntropy(t *testing.T) {
	txns := []Transaction{mustTxn(t, "t1")}
	tip := Genesis()

	b, err := BuildProposal(txns, "0.500000", tip.Index+1, tip.Hash, 1.0)
	require.NoError(t, err)
	b.Entropy = "not-a-number"

	assertKind(t, ValidateBlock(b, txns, tip), BadEntropy)
}
