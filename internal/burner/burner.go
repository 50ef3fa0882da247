// =============================
// File: internal/burner/burner.go
// =============================
package burner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

const confirmTimeout = 30 * time.Second

// ErrNothingToBurn is returned when the authority holds no units of the
// target token at burn time.
var ErrNothingToBurn = errors.New("no tokens held to burn")

// Burner permanently destroys target-token units held by the authority.
type Burner struct {
	client    *solclient.Client
	authority *wallet.Wallet
	logger    *zap.Logger
}

func NewBurner(client *solclient.Client, authority *wallet.Wallet, logger *zap.Logger) *Burner {
	return &Burner{
		client:    client,
		authority: authority,
		logger:    logger.Named("burner"),
	}
}

// Burn destroys up to amount base units of mint held by the authority and
// returns the burn signature and the amount actually burned.
//
// The live balance is re-read first: a purchase may have filled partially, so
// the requested amount is clamped to what is actually held.
func (b *Burner) Burn(ctx context.Context, mint solana.PublicKey, amount uint64) (solana.Signature, uint64, error) {
	held, err := b.client.GetTokenBalance(ctx, mint, b.authority.PublicKey)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to read token balance before burn: %w", err)
	}
	if held == 0 {
		return solana.Signature{}, 0, ErrNothingToBurn
	}

	burnAmount := amount
	if held < burnAmount {
		b.logger.Warn("Requested burn exceeds held balance, clamping",
			zap.Uint64("requested", amount),
			zap.Uint64("held", held))
		burnAmount = held
	}

	ata, err := b.authority.GetATA(mint)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to derive token account: %w", err)
	}

	blockhash, err := b.client.GetRecentBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	burnIx := token.NewBurnInstruction(
		burnAmount,
		ata,
		mint,
		b.authority.PublicKey,
		[]solana.PublicKey{},
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{burnIx},
		blockhash,
		solana.TransactionPayer(b.authority.PublicKey),
	)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to build burn transaction: %w", err)
	}
	if err := b.authority.SignTransaction(tx); err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to sign burn transaction: %w", err)
	}

	sig, err := b.client.SendTransactionWithOpts(ctx, tx, solclient.TransactionOptions{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to send burn transaction: %w", err)
	}
	b.logger.Info("Burn transaction sent",
		zap.String("signature", sig.String()),
		zap.Uint64("amount", burnAmount))

	if err := b.client.WaitForTransactionConfirmation(ctx, sig, confirmTimeout); err != nil {
		return sig, burnAmount, fmt.Errorf("burn confirmation failed: %w", err)
	}
	b.logger.Info("Burn confirmed", zap.String("signature", sig.String()))
	return sig, burnAmount, nil
}
