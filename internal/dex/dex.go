// =============================
// File: internal/dex/dex.go
// =============================
package dex

import (
	"context"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// BuyParams describes a single buyback purchase.
type BuyParams struct {
	SpendLamports uint64
	TargetMint    solana.PublicKey
	SlippageBps   uint64
}

// BuyResult is the outcome of a successful purchase.
type BuyResult struct {
	Signature    solana.Signature
	TokensBought uint64
	// Raw API payloads kept for the audit trail.
	QuotePayload json.RawMessage
	SwapPayload  json.RawMessage
}

// Backend converts a SOL amount into target-asset units through an external
// market mechanism. Implementations validate slippage/price impact internally
// and fail with the typed errors in errors.go.
type Backend interface {
	// Name returns the backend name.
	Name() string
	// Buy executes the purchase and returns the transaction reference and
	// the acquired token amount.
	Buy(ctx context.Context, params BuyParams) (*BuyResult, error)
}
