package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesBalance(t *testing.T) {
	l := NewLedger("Test", "TST", 100, "alice")
	require.NoError(t, l.Transfer("alice", "bob", 40))
	assert.Equal(t, int64(60), l.BalanceOf("alice"))
	assert.Equal(t, int64(40), l.BalanceOf("bob"))
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	l := NewLedger("Test", "TST", 100, "alice")
	assert.Error(t, l.Transfer("alice", "bob", 1000))
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	l := NewLedger("Test", "TST", 100, "alice")
	assert.Error(t, l.Transfer("alice", "bob", 0))
}

func TestApproveAndTransferFrom(t *testing.T) {
	l := NewLedger("Test", "TST", 100, "alice")
	require.NoError(t, l.Approve("alice", "bob", 30))
	assert.Equal(t, int64(30), l.Allowance("alice", "bob"))

	require.NoError(t, l.TransferFrom("alice", "bob", "carol", 20))
	assert.Equal(t, int64(80), l.BalanceOf("alice"))
	assert.Equal(t, int64(20), l.BalanceOf("carol"))
	assert.Equal(t, int64(10), l.Allowance("alice", "bob"))
}

func TestTransferFromExceedingAllowanceFails(t *testing.T) {
	l := NewLedger("Test", "TST", 100, "alice")
	require.NoError(t, l.Approve("alice", "bob", 10))
	assert.Error(t, l.TransferFrom("alice", "bob", "carol", 20))
}
