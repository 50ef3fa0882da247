// =============================
// File: internal/dex/pumpportal/pumpportal.go
// =============================
package pumpportal

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

const (
	BackendName = "pumpfun"

	confirmTimeout = 30 * time.Second
	// settleDelay is how long we wait after confirmation before reading the
	// token balance. Bonding-curve fills can lag the confirmed slot.
	settleDelay = 2 * time.Second
)

// Backend buys the target token directly on its pump.fun bonding curve via
// PumpPortal. Single attempt: bonding-curve prices move too fast for retries
// to land at the quoted level.
type Backend struct {
	api            *APIClient
	client         *solclient.Client
	authority      *wallet.Wallet
	priorityFeeSOL float64
	logger         *zap.Logger
}

func NewBackend(api *APIClient, client *solclient.Client, authority *wallet.Wallet, priorityFeeSOL float64, logger *zap.Logger) *Backend {
	return &Backend{
		api:            api,
		client:         client,
		authority:      authority,
		priorityFeeSOL: priorityFeeSOL,
		logger:         logger.Named("pumpfun"),
	}
}

func (b *Backend) Name() string {
	return BackendName
}

// Buy executes a SOL -> target token purchase on the bonding curve.
func (b *Backend) Buy(ctx context.Context, params dex.BuyParams) (*dex.BuyResult, error) {
	slippagePct := float64(params.SlippageBps) / 100

	txBase64, raw, err := b.api.BuildBuyTransaction(ctx,
		b.authority.PublicKey.String(),
		params.TargetMint.String(),
		params.SpendLamports,
		slippagePct,
		b.priorityFeeSOL,
	)
	if err != nil {
		return nil, &dex.QuoteError{Backend: BackendName, OriginalError: err}
	}

	tx, err := solana.TransactionFromBase64(txBase64)
	if err != nil {
		return nil, &dex.SubmissionError{
			Backend:       BackendName,
			OriginalError: fmt.Errorf("failed to deserialize trade transaction: %w", err),
		}
	}
	if err := b.authority.SignTransaction(tx); err != nil {
		return nil, &dex.SubmissionError{
			Backend:       BackendName,
			OriginalError: fmt.Errorf("failed to sign trade transaction: %w", err),
		}
	}

	sig, err := b.client.SendTransactionWithOpts(ctx, tx, solclient.TransactionOptions{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, &dex.SubmissionError{Backend: BackendName, OriginalError: err}
	}
	b.logger.Info("Trade transaction sent", zap.String("signature", sig.String()))

	if err := b.client.WaitForTransactionConfirmation(ctx, sig, confirmTimeout); err != nil {
		return nil, fmt.Errorf("%w: %s", dex.ErrConfirmationTimeout, err.Error())
	}
	b.logger.Info("Trade confirmed", zap.String("signature", sig.String()))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(settleDelay):
	}

	bought, err := b.client.GetTokenBalance(ctx, params.TargetMint, b.authority.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read post-trade token balance: %w", err)
	}
	if bought == 0 {
		return nil, dex.ErrNoTokensAcquired
	}

	return &dex.BuyResult{
		Signature:    sig,
		TokensBought: bought,
		QuotePayload: raw,
	}, nil
}
