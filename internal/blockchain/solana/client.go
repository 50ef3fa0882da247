// internal/blockchain/solana/client.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// ErrTransactionFailed marks a transaction that landed on chain but failed
// during execution, as opposed to one that was never confirmed.
var ErrTransactionFailed = errors.New("transaction failed on chain")

// Client is a thin adapter over the solana-go RPC client.
type Client struct {
	rpc    *rpc.Client
	logger *zap.Logger
}

// TransactionOptions controls transaction submission.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// NewClient creates a new client for the given RPC endpoint.
func NewClient(rpcURL string, logger *zap.Logger) *Client {
	return &Client{
		rpc:    rpc.New(rpcURL),
		logger: logger.Named("solana-client"),
	}
}

// GetBalance returns the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	result, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		c.logger.Error("GetBalance error", zap.Error(err))
		return 0, err
	}
	return result.Value, nil
}

// GetRecentBlockhash returns the latest blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		c.logger.Error("GetRecentBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// SendTransactionWithOpts submits a transaction with the given options.
func (c *Client) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts TransactionOptions) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
	})
	if err != nil {
		c.logger.Error("SendTransactionWithOpts error", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

// GetSignatureStatuses returns the statuses of the given signatures.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	result, err := c.rpc.GetSignatureStatuses(ctx, false, signatures...)
	if err != nil {
		c.logger.Error("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// WaitForTransactionConfirmation polls signature statuses until the transaction
// is confirmed, the timeout elapses, or the context is cancelled.
func (c *Client) WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, timeout time.Duration) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("confirmation timeout")
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, signature)
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses != nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
				status := statuses.Value[0]
				if status.Err != nil {
					return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
				}
				if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
					status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
					return nil
				}
			}
		}
	}
}

// GetTokenBalance returns the token balance held by owner for the given mint,
// in base units. A missing token account reads as zero.
func (c *Client) GetTokenBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive associated token account: %w", err)
	}

	result, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFoundError(err) {
			return 0, nil
		}
		c.logger.Debug("GetTokenAccountBalance error",
			zap.String("account", ata.String()),
			zap.Error(err))
		return 0, err
	}
	if result == nil || result.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

// GetVersion returns the RPC node's software version. Used for health checks.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	result, err := c.rpc.GetVersion(ctx)
	if err != nil {
		return "", err
	}
	return result.SolanaCore, nil
}

func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find account")
}
