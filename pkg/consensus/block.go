package consensus

import (
	"bytes"
	"strconv"
)

// Block is one entry of the replicated chain, per §3.
type Block struct {
	Index        uint64
	PreviousHash Hash
	Transactions []Transaction
	Entropy      string
	Timestamp    float64
	Hash         Hash
}

// canonicalTransactions renders Transactions as the JSON array
// described in §6: each transaction's bytes exactly as received from
// the client, concatenated with no re-encoding, so key order is
// whatever the client sent rather than whatever json.Marshal would
// choose on a re-serialization.
func canonicalTransactions(txns []Transaction) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, t := range txns {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(t.Raw)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// formatTimestamp renders ts as its decimal representation with full
// precision, matching the "str(timestamp)" rule of §6.
func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// computeHash re-derives a block's hash from its fields: index ||
// previous_hash || canonical(transactions) || entropy || timestamp,
// concatenated with no separators (§3, §6).
func computeHash(index uint64, prevHash Hash, txns []Transaction, entropy string, ts float64) Hash {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(index, 10))
	buf.WriteString(string(prevHash))
	buf.Write(canonicalTransactions(txns))
	buf.WriteString(entropy)
	buf.WriteString(formatTimestamp(ts))
	return sha256Hex(buf.Bytes())
}

// NewBlock builds a block and computes its hash, used by both the
// proposer and by followers reconstructing a candidate block to
// validate.
func NewBlock(index uint64, prevHash Hash, txns []Transaction, entropy string, ts float64) *Block {
	b := &Block{
		Index:        index,
		PreviousHash: prevHash,
		Transactions: txns,
		Entropy:      entropy,
		Timestamp:    ts,
	}
	b.Hash = computeHash(index, prevHash, txns, entropy, ts)
	return b
}

// VerifyHash reports whether b.Hash matches the hash recomputed from
// b's other fields (invariant (a) of §3).
func (b *Block) VerifyHash() bool {
	return b.Hash == computeHash(b.Index, b.PreviousHash, b.Transactions, b.Entropy, b.Timestamp)
}
