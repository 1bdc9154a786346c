package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

const hashBytes = 32

// Hash is a hex-encoded SHA-256 digest.
type Hash string

// ZeroHash is the previous_hash value carried by the genesis block.
const ZeroHash Hash = "0"

// sha256Hex hashes the concatenation of b and returns the lowercase
// hex-encoded digest, matching the block hash wire format of §6.
func sha256Hex(b ...[]byte) Hash {
	d := sha256.New()
	for _, e := range b {
		// hash.Hash.Write never returns an error.
		_, _ = d.Write(e)
	}
	return Hash(hex.EncodeToString(d.Sum(nil)))
}

// toUint32Mod reduces the SHA-256 digest of s modulo 2^32, the
// numeric projection used throughout the Entropy Engine (§4.1).
func toUint32Mod(s string) uint32 {
	sum := sha256.Sum256([]byte(s))
	var b big.Int
	b.SetBytes(sum[:])
	b.Mod(&b, modulus32)
	return uint32(b.Uint64())
}

var modulus32 = big.NewInt(1 << 32)

// seedFromHash reduces a Hash's underlying digest to the big-endian
// 256-bit integer described by §4.4, then folds it to the generator's
// native uint32 seed state.
func seedFromHash(h Hash) uint32 {
	raw, err := hex.DecodeString(string(h))
	if err != nil {
		// h is always produced by sha256Hex; a decode failure means a
		// caller constructed a Hash by hand incorrectly.
		panic(err)
	}

	var b big.Int
	b.SetBytes(raw)
	b.Mod(&b, modulus32)
	return uint32(b.Uint64())
}
