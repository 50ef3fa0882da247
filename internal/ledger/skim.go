// ==============================
// File: internal/ledger/skim.go
// ==============================
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/types"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

const skimConfirmTimeout = 30 * time.Second

// Skimmer moves vault excess into the treasury via the program's
// skim_excess_to_treasury instruction. The instruction may not be deployed on
// every program build; callers must treat failures as non-fatal and fall back
// to treasury-only spending.
type Skimmer struct {
	client    *solclient.Client
	authority *wallet.Wallet
	accounts  Accounts
	programID solana.PublicKey
	logger    *zap.Logger
}

func NewSkimmer(client *solclient.Client, authority *wallet.Wallet, accounts Accounts, programID solana.PublicKey, logger *zap.Logger) *Skimmer {
	return &Skimmer{
		client:    client,
		authority: authority,
		accounts:  accounts,
		programID: programID,
		logger:    logger.Named("skimmer"),
	}
}

// SkimToTreasury transfers amount lamports from the vault to the treasury,
// leaving at least minVaultReserve in the vault.
func (s *Skimmer) SkimToTreasury(ctx context.Context, amount, minVaultReserve uint64) (solana.Signature, error) {
	if s.authority == nil {
		return solana.Signature{}, fmt.Errorf("authority keypair not available")
	}
	if amount == 0 {
		return solana.Signature{}, fmt.Errorf("skim amount must be positive")
	}

	ix := buildSkimInstruction(s.programID, s.accounts, s.authority.PublicKey, amount, minVaultReserve)

	blockhash, err := s.client.GetRecentBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(s.authority.PublicKey))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := s.authority.SignTransaction(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, solclient.TransactionOptions{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("skim transaction rejected: %w", err)
	}

	if err := s.client.WaitForTransactionConfirmation(ctx, sig, skimConfirmTimeout); err != nil {
		return sig, fmt.Errorf("skim confirmation failed: %w", err)
	}

	s.logger.Info("Skimmed vault excess to treasury",
		zap.Float64("amount_sol", types.LamportsToSOL(amount)),
		zap.String("signature", sig.String()))
	return sig, nil
}

// buildSkimInstruction assembles the anchor instruction. The account order
// must match the on-chain SkimExcessToTreasury context.
func buildSkimInstruction(programID solana.PublicKey, accounts Accounts, authority solana.PublicKey, amount, minVaultReserve uint64) solana.Instruction {
	data := make([]byte, 0, 24)
	data = append(data, anchorDiscriminator("skim_excess_to_treasury")...)

	amountBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountBytes, amount)
	data = append(data, amountBytes...)

	reserveBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(reserveBytes, minVaultReserve)
	data = append(data, reserveBytes...)

	insAccounts := []*solana.AccountMeta{
		{PublicKey: accounts.Casino, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Treasury, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: true, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(programID, insAccounts, data)
}

// anchorDiscriminator computes the 8-byte anchor method discriminator.
func anchorDiscriminator(method string) []byte {
	sum := sha256.Sum256([]byte("global:" + method))
	return sum[:8]
}
