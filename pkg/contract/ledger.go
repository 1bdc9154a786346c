// Package contract implements the isolated token-balance contract
// demo named in SPEC_FULL.md §10: an application-level toy, kept
// deliberately independent of pkg/consensus and pkg/engine so that
// nothing in the replicated ledger's round state machine ever depends
// on it.
package contract

import (
	"fmt"
	"sync"
)

// Ledger tracks token balances and spending allowances for a single,
// in-memory token contract.
type Ledger struct {
	mu          sync.Mutex
	name        string
	symbol      string
	totalSupply int64
	balances    map[string]int64
	allowances  map[string]map[string]int64
}

// NewLedger creates a token contract with the entire supply assigned
// to creator, mirroring the constructor of the original token
// contract.
func NewLedger(name, symbol string, totalSupply int64, creator string) *Ledger {
	return &Ledger{
		name:        name,
		symbol:      symbol,
		totalSupply: totalSupply,
		balances:    map[string]int64{creator: totalSupply},
		allowances:  make(map[string]map[string]int64),
	}
}

// Transfer moves amount tokens from sender to receiver.
func (l *Ledger) Transfer(sender, receiver string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be greater than 0")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[sender] < amount {
		return fmt.Errorf("insufficient balance")
	}

	l.balances[sender] -= amount
	l.balances[receiver] += amount
	return nil
}

// BalanceOf returns the token balance of address, zero if it holds
// none.
func (l *Ledger) BalanceOf(address string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address]
}

// Approve authorizes spender to transfer up to amount tokens on
// owner's behalf.
func (l *Ledger) Approve(owner, spender string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("approval amount must be greater than 0")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[owner] < amount {
		return fmt.Errorf("insufficient balance to approve")
	}

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]int64)
	}
	l.allowances[owner][spender] = amount
	return nil
}

// Allowance returns how much spender may still transfer on owner's
// behalf.
func (l *Ledger) Allowance(owner, spender string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender]
}

// TransferFrom moves amount tokens from owner to receiver, debiting
// spender's allowance over owner's balance.
func (l *Ledger) TransferFrom(owner, spender, receiver string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be greater than 0")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[owner][spender] < amount {
		return fmt.Errorf("transfer amount exceeds allowance")
	}
	if l.balances[owner] < amount {
		return fmt.Errorf("insufficient balance in owner's account")
	}

	l.balances[owner] -= amount
	l.allowances[owner][spender] -= amount
	l.balances[receiver] += amount
	return nil
}
