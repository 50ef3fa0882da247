// ==============================
// File: internal/ledger/ledger_test.go
// ==============================
package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/types"
)

type fakeBalances struct {
	balances map[solana.PublicKey]uint64
	err      error
}

func (f *fakeBalances) GetBalance(_ context.Context, pubkey solana.PublicKey) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.balances[pubkey], nil
}

func testAccounts(t *testing.T) Accounts {
	t.Helper()
	programID := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	accounts, err := DeriveAccounts(programID)
	require.NoError(t, err)
	return accounts
}

func newTestLedger(t *testing.T, vault, treasury uint64) *Ledger {
	accounts := testAccounts(t)
	reader := &fakeBalances{balances: map[solana.PublicKey]uint64{
		accounts.Vault:    vault,
		accounts.Treasury: treasury,
	}}
	return New(reader, accounts, zap.NewNop())
}

func TestDeriveAccountsIsDeterministic(t *testing.T) {
	a := testAccounts(t)
	b := testAccounts(t)

	assert.Equal(t, a.Casino, b.Casino)
	assert.Equal(t, a.Vault, b.Vault)
	assert.Equal(t, a.Treasury, b.Treasury)
	assert.NotEqual(t, a.Vault, a.Treasury)
}

func TestComputeSpendableAboveReserves(t *testing.T) {
	// Vault 2 SOL, treasury 0.01 SOL.
	l := newTestLedger(t, 2*types.LamportsPerSOL, 10_000_000)

	s, err := l.ComputeSpendable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1_500_000_000), s.VaultExcess)
	assert.Equal(t, uint64(10_000_000-TreasuryRentMinLamports), s.TreasurySpendable)
	assert.Equal(t, s.VaultExcess+s.TreasurySpendable, s.TotalAvailable)
}

func TestComputeSpendableBelowReserves(t *testing.T) {
	// Vault below the 0.5 SOL reserve, treasury exactly at rent minimum.
	l := newTestLedger(t, 400_000_000, TreasuryRentMinLamports)

	s, err := l.ComputeSpendable(context.Background())
	require.NoError(t, err)

	assert.Zero(t, s.VaultExcess)
	assert.Zero(t, s.TreasurySpendable)
	assert.Zero(t, s.TotalAvailable)
}

func TestComputeSpendableExactlyAtReserve(t *testing.T) {
	l := newTestLedger(t, VaultReserveLamports, TreasuryRentMinLamports)

	s, err := l.ComputeSpendable(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.TotalAvailable)
}

func TestComputeSpendableEmptyAccounts(t *testing.T) {
	l := newTestLedger(t, 0, 0)

	s, err := l.ComputeSpendable(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.TotalAvailable)
}

func TestComputeSpendablePropagatesReadErrors(t *testing.T) {
	accounts := testAccounts(t)
	reader := &fakeBalances{err: errors.New("rpc unavailable")}
	l := New(reader, accounts, zap.NewNop())

	_, err := l.ComputeSpendable(context.Background())
	assert.Error(t, err)
}
