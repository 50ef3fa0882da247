// ==============================
// File: internal/ledger/ledger.go
// ==============================
package ledger

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/types"
)

const (
	// VaultReserveLamports is the fixed operating reserve kept in the vault
	// for gameplay payouts (0.5 SOL).
	VaultReserveLamports = types.LamportsPerSOL / 2

	// TreasuryRentMinLamports is the rent-exempt minimum that keeps the
	// treasury PDA alive (~0.00089 SOL).
	TreasuryRentMinLamports = 890_880
)

// BalanceReader reads lamport balances from the chain.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
}

// Accounts holds the program-derived custodial addresses.
// Seeds must match the on-chain program:
//   - casino PDA:   ["casino"]
//   - vault PDA:    ["vault", casino]
//   - treasury PDA: ["treasury", casino]
type Accounts struct {
	Casino   solana.PublicKey
	Vault    solana.PublicKey
	Treasury solana.PublicKey
}

// DeriveAccounts derives the custodial PDAs for the given program.
func DeriveAccounts(programID solana.PublicKey) (Accounts, error) {
	casino, _, err := solana.FindProgramAddress([][]byte{[]byte("casino")}, programID)
	if err != nil {
		return Accounts{}, fmt.Errorf("failed to derive casino PDA: %w", err)
	}
	vault, _, err := solana.FindProgramAddress([][]byte{[]byte("vault"), casino.Bytes()}, programID)
	if err != nil {
		return Accounts{}, fmt.Errorf("failed to derive vault PDA: %w", err)
	}
	treasury, _, err := solana.FindProgramAddress([][]byte{[]byte("treasury"), casino.Bytes()}, programID)
	if err != nil {
		return Accounts{}, fmt.Errorf("failed to derive treasury PDA: %w", err)
	}
	return Accounts{Casino: casino, Vault: vault, Treasury: treasury}, nil
}

// Spendable is the amount of SOL that can be spent this cycle without
// violating the reserve invariants. All values are lamports.
type Spendable struct {
	VaultBalance      uint64
	TreasuryBalance   uint64
	VaultExcess       uint64
	TreasurySpendable uint64
	TotalAvailable    uint64
}

// Ledger computes spendable balances against the custodial accounts.
// It has no side effects.
type Ledger struct {
	client   BalanceReader
	accounts Accounts
	logger   *zap.Logger
}

func New(client BalanceReader, accounts Accounts, logger *zap.Logger) *Ledger {
	return &Ledger{
		client:   client,
		accounts: accounts,
		logger:   logger.Named("ledger"),
	}
}

// Accounts returns the derived custodial addresses.
func (l *Ledger) Accounts() Accounts {
	return l.accounts
}

// ComputeSpendable reads both custodial balances and derives what can be
// spent while keeping the vault reserve and treasury rent minimum intact.
func (l *Ledger) ComputeSpendable(ctx context.Context) (Spendable, error) {
	vaultBalance, err := l.client.GetBalance(ctx, l.accounts.Vault)
	if err != nil {
		return Spendable{}, fmt.Errorf("failed to read vault balance: %w", err)
	}
	treasuryBalance, err := l.client.GetBalance(ctx, l.accounts.Treasury)
	if err != nil {
		return Spendable{}, fmt.Errorf("failed to read treasury balance: %w", err)
	}

	s := Spendable{
		VaultBalance:    vaultBalance,
		TreasuryBalance: treasuryBalance,
	}
	if vaultBalance > VaultReserveLamports {
		s.VaultExcess = vaultBalance - VaultReserveLamports
	}
	if treasuryBalance > TreasuryRentMinLamports {
		s.TreasurySpendable = treasuryBalance - TreasuryRentMinLamports
	}
	s.TotalAvailable = s.VaultExcess + s.TreasurySpendable

	l.logger.Debug("Computed spendable balances",
		zap.Float64("vault_sol", types.LamportsToSOL(vaultBalance)),
		zap.Float64("treasury_sol", types.LamportsToSOL(treasuryBalance)),
		zap.Float64("vault_excess_sol", types.LamportsToSOL(s.VaultExcess)),
		zap.Float64("treasury_spendable_sol", types.LamportsToSOL(s.TreasurySpendable)))

	return s, nil
}
