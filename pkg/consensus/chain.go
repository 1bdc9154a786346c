package consensus

import (
	"sync"

	log "github.com/helinwang/log15"
)

// Chain is the Chain Store of §4.2: it exclusively owns the accepted
// chain and the mempool. Every mutation is guarded by mu; callers in
// pkg/engine take the single cluster-local mutex before touching the
// Chain, so this lock mostly protects against the Admission API and
// the Peer Fabric dispatcher racing each other directly against it.
type Chain struct {
	mu sync.Mutex

	blocks []*Block

	mempool    []Transaction
	mempoolIdx map[string]int

	reputation map[NodeID]int
}

// NewChain creates a Chain seeded with the agreed genesis block. Boot
// fails loudly (returns an error) if genesis does not match the
// bit-identical block every replica must agree on.
func NewChain(genesis *Block) (*Chain, error) {
	if !VerifyGenesis(genesis) {
		return nil, newErr(GenesisMismatch, "genesis block does not match the agreed constant")
	}

	return &Chain{
		blocks:     []*Block{genesis},
		mempoolIdx: make(map[string]int),
		reputation: make(map[NodeID]int),
	}, nil
}

// Len returns the number of blocks in the chain, including genesis.
func (c *Chain) Len() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.blocks))
}

// Tip returns the most recently appended block.
func (c *Chain) Tip() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[len(c.blocks)-1]
}

// Blocks returns a copy of the full chain, oldest first.
func (c *Chain) Blocks() []*Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Append validates and appends b, per the contract of §4.2: the index
// must continue the chain, the previous hash must match the tip, and
// the block's own hash must be self-consistent. On success,
// transactions in b are removed from the mempool by id.
func (c *Chain) Append(b *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	if b.Index != uint64(len(c.blocks)) {
		return newErr(IndexGap, "append: got index %d, expected %d", b.Index, len(c.blocks))
	}
	if b.PreviousHash != tip.Hash {
		return newErr(PrevHashMismatch, "append: previous_hash %q does not match tip %q", b.PreviousHash, tip.Hash)
	}
	if !b.VerifyHash() {
		return newErr(HashMismatch, "append: block hash does not match its fields")
	}

	c.blocks = append(c.blocks, b)
	c.removeLocked(b.Transactions)
	log.Info("block appended", "index", b.Index, "hash", b.Hash, "txns", len(b.Transactions))
	return nil
}

// Submit adds tx to the mempool iff no existing entry shares its id.
// A duplicate id is a silent no-op, matching the idempotent submit()
// contract of §4.2.
func (c *Chain) Submit(tx Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.mempoolIdx[tx.ID]; ok {
		return
	}

	c.mempoolIdx[tx.ID] = len(c.mempool)
	c.mempool = append(c.mempool, tx)
}

// Take returns the first limit mempool entries in insertion order,
// without removing them.
func (c *Chain) Take(limit int) []Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := limit
	if n > len(c.mempool) {
		n = len(c.mempool)
	}

	out := make([]Transaction, n)
	copy(out, c.mempool[:n])
	return out
}

// MempoolSize returns the number of pending transactions.
func (c *Chain) MempoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mempool)
}

// Remove deletes entries from the mempool whose id appears in txns.
func (c *Chain) Remove(txns []Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(txns)
}

// must be called with mu held
func (c *Chain) removeLocked(txns []Transaction) {
	if len(txns) == 0 {
		return
	}

	drop := make(map[string]bool, len(txns))
	for _, t := range txns {
		drop[t.ID] = true
	}

	kept := c.mempool[:0]
	for _, t := range c.mempool {
		if drop[t.ID] {
			continue
		}
		kept = append(kept, t)
	}
	c.mempool = kept

	c.mempoolIdx = make(map[string]int, len(c.mempool))
	for i, t := range c.mempool {
		c.mempoolIdx[t.ID] = i
	}
}

// AdjustReputation applies delta to node's reputation score, per the
// reputation tracker of SPEC_FULL.md §4.7. This never gates any
// consensus decision; it is purely observational.
func (c *Chain) AdjustReputation(node NodeID, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reputation[node] += delta
}

// Reputation returns a snapshot of every tracked node's score.
func (c *Chain) Reputation() map[NodeID]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[NodeID]int, len(c.reputation))
	for k, v := range c.reputation {
		out[k] = v
	}
	return out
}
