// =============================
// File: internal/dex/jupiter/jupiter.go
// =============================
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/types"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

const (
	BackendName = "jupiter"

	// PriceImpactCeilingPct is the hard ceiling on quoted price impact.
	PriceImpactCeilingPct = 5.0

	maxSubmitAttempts = 3
	retryBaseInterval = 2 * time.Second
	confirmTimeout    = 30 * time.Second
)

// Backend buys the target token through the Jupiter aggregator: quote,
// price-impact validation, signed-swap transaction, submit and confirm with
// bounded exponential backoff.
type Backend struct {
	api       *APIClient
	client    *solclient.Client
	authority *wallet.Wallet
	logger    *zap.Logger
}

func NewBackend(api *APIClient, client *solclient.Client, authority *wallet.Wallet, logger *zap.Logger) *Backend {
	return &Backend{
		api:       api,
		client:    client,
		authority: authority,
		logger:    logger.Named("jupiter"),
	}
}

func (b *Backend) Name() string {
	return BackendName
}

// Buy executes a SOL -> target token swap.
func (b *Backend) Buy(ctx context.Context, params dex.BuyParams) (*dex.BuyResult, error) {
	quote, err := b.api.GetQuote(ctx, types.SOLMint, params.TargetMint.String(), params.SpendLamports, params.SlippageBps)
	if err != nil {
		return nil, &dex.QuoteError{Backend: BackendName, OriginalError: err}
	}

	impact, err := quote.PriceImpact()
	if err != nil {
		return nil, &dex.QuoteError{Backend: BackendName, OriginalError: err}
	}
	if impact > PriceImpactCeilingPct {
		return nil, &dex.PriceImpactError{ImpactPct: impact, CeilingPct: PriceImpactCeilingPct}
	}

	b.logger.Info("Quote accepted",
		zap.String("in_amount", quote.InAmount),
		zap.String("out_amount", quote.OutAmount),
		zap.Float64("price_impact_pct", impact))

	var swapPayload json.RawMessage
	attempt := 0
	op := func() (solana.Signature, error) {
		attempt++
		b.logger.Debug("Swap attempt", zap.Int("attempt", attempt))

		swap, err := b.api.GetSwapTransaction(ctx, quote, b.authority.PublicKey.String())
		if err != nil {
			return solana.Signature{}, &dex.SubmissionError{Backend: BackendName, OriginalError: err}
		}
		swapPayload = swap.Raw

		tx, err := solana.TransactionFromBase64(swap.SwapTransaction)
		if err != nil {
			return solana.Signature{}, backoff.Permanent(&dex.SubmissionError{
				Backend:       BackendName,
				OriginalError: fmt.Errorf("failed to deserialize swap transaction: %w", err),
			})
		}
		if err := b.authority.SignTransaction(tx); err != nil {
			return solana.Signature{}, backoff.Permanent(&dex.SubmissionError{
				Backend:       BackendName,
				OriginalError: fmt.Errorf("failed to sign swap transaction: %w", err),
			})
		}

		sig, err := b.client.SendTransactionWithOpts(ctx, tx, solclient.TransactionOptions{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			// Slippage and insufficient funds are not transient.
			if dex.IsSlippageExceeded(err) || dex.IsInsufficientFunds(err) {
				return solana.Signature{}, backoff.Permanent(&dex.SubmissionError{Backend: BackendName, OriginalError: err})
			}
			return solana.Signature{}, &dex.SubmissionError{Backend: BackendName, OriginalError: err}
		}
		b.logger.Info("Swap transaction sent", zap.String("signature", sig.String()))

		if err := b.client.WaitForTransactionConfirmation(ctx, sig, confirmTimeout); err != nil {
			return solana.Signature{}, classifyWaitError(err)
		}
		return sig, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = retryBaseInterval
	expo.Multiplier = 2
	expo.RandomizationFactor = 0

	sig, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxSubmitAttempts),
	)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Swap confirmed", zap.String("signature", sig.String()))

	// Re-read the live balance instead of trusting the quoted output:
	// partial fills are possible.
	bought, err := b.client.GetTokenBalance(ctx, params.TargetMint, b.authority.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read post-swap token balance: %w", err)
	}
	if bought == 0 {
		return nil, dex.ErrNoTokensAcquired
	}

	return &dex.BuyResult{
		Signature:    sig,
		TokensBought: bought,
		QuotePayload: quote.Raw,
		SwapPayload:  swapPayload,
	}, nil
}

// classifyWaitError types a confirmation-wait failure. Slippage and
// insufficient funds abort the whole buy; other on-chain execution failures
// are retried with a fresh swap transaction; only genuine waits time out.
func classifyWaitError(err error) error {
	if dex.IsSlippageExceeded(err) || dex.IsInsufficientFunds(err) {
		return backoff.Permanent(&dex.SubmissionError{Backend: BackendName, OriginalError: err})
	}
	if errors.Is(err, solclient.ErrTransactionFailed) {
		return &dex.SubmissionError{Backend: BackendName, OriginalError: err}
	}
	return fmt.Errorf("%w: %s", dex.ErrConfirmationTimeout, err.Error())
}
