package consensus

// genesisTimestamp is the constant every replica agrees on out of
// band (§4.2). Any value works as long as it is identical everywhere;
// this one has no particular significance.
const genesisTimestamp = 1700000000.0

// Genesis returns the bit-identical genesis block every replica must
// boot from: index 0, previous_hash "0", no transactions, zero
// entropy, and the agreed timestamp.
func Genesis() *Block {
	return NewBlock(0, ZeroHash, nil, "0", genesisTimestamp)
}

// VerifyGenesis reports whether b matches the agreed genesis block
// byte-for-byte. A mismatch is fatal at boot (§4.2, §7).
func VerifyGenesis(b *Block) bool {
	want := Genesis()
	return b.Index == want.Index &&
		b.PreviousHash == want.PreviousHash &&
		len(b.Transactions) == 0 &&
		b.Entropy == want.Entropy &&
		b.Timestamp == want.Timestamp &&
		b.Hash == want.Hash
}
