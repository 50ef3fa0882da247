// ==============================
// File: internal/dex/jupiter/jupiter_test.go
// ==============================
package jupiter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/types"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

func testBackend(t *testing.T, quoteHandler http.HandlerFunc) *Backend {
	t.Helper()
	server := httptest.NewServer(quoteHandler)
	t.Cleanup(server.Close)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	api := NewAPIClient(server.URL+"/quote", server.URL+"/swap", zap.NewNop())
	client := solclient.NewClient(server.URL+"/rpc", zap.NewNop())
	authority, err := wallet.NewWallet(key.String())
	require.NoError(t, err)
	return NewBackend(api, client, authority, zap.NewNop())
}

func buyParams() dex.BuyParams {
	return dex.BuyParams{
		SpendLamports: 100_000_000,
		TargetMint:    solana.MustPublicKeyFromBase58(types.SOLMint),
		SlippageBps:   100,
	}
}

func TestGetQuoteParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "100", r.URL.Query().Get("slippageBps"))
		w.Write([]byte(`{"inputMint":"in","inAmount":"100000000","outputMint":"out","outAmount":"42000","slippageBps":100,"priceImpactPct":"0.5"}`))
	}))
	defer server.Close()

	api := NewAPIClient(server.URL, server.URL, zap.NewNop())
	quote, err := api.GetQuote(context.Background(), "in", "out", 100_000_000, 100)
	require.NoError(t, err)

	assert.Equal(t, "42000", quote.OutAmount)
	assert.NotEmpty(t, quote.Raw)

	impact, err := quote.PriceImpact()
	require.NoError(t, err)
	assert.Equal(t, 0.5, impact)

	out, err := quote.OutAmountUnits()
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000), out)
}

func TestPriceImpactEmptyReadsAsZero(t *testing.T) {
	q := &Quote{}
	impact, err := q.PriceImpact()
	require.NoError(t, err)
	assert.Zero(t, impact)
}

func TestBuyRejectsExcessivePriceImpact(t *testing.T) {
	backend := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inAmount":"100000000","outAmount":"42000","priceImpactPct":"7.3"}`))
	})

	_, err := backend.Buy(context.Background(), buyParams())
	require.Error(t, err)

	var impactErr *dex.PriceImpactError
	require.ErrorAs(t, err, &impactErr)
	assert.Equal(t, 7.3, impactErr.ImpactPct)
	assert.Equal(t, PriceImpactCeilingPct, impactErr.CeilingPct)
}

func TestBuyWrapsQuoteFailure(t *testing.T) {
	backend := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "route not found", http.StatusBadRequest)
	})

	_, err := backend.Buy(context.Background(), buyParams())
	require.Error(t, err)

	var quoteErr *dex.QuoteError
	assert.ErrorAs(t, err, &quoteErr)
}

func TestClassifyWaitErrorSlippageIsPermanent(t *testing.T) {
	// Preflight passed but execution hit moved prices: the rendered status
	// carries the custom slippage code. Must abort, never retried.
	waitErr := fmt.Errorf("%w: map[InstructionError:[3 map[Custom:6001]]]", solclient.ErrTransactionFailed)

	err := classifyWaitError(waitErr)

	var perm *backoff.PermanentError
	require.ErrorAs(t, err, &perm)
	var subErr *dex.SubmissionError
	assert.ErrorAs(t, err, &subErr)
	assert.NotErrorIs(t, err, dex.ErrConfirmationTimeout)
}

func TestClassifyWaitErrorInsufficientFundsIsPermanent(t *testing.T) {
	waitErr := fmt.Errorf("%w: insufficient lamports", solclient.ErrTransactionFailed)

	err := classifyWaitError(waitErr)

	var perm *backoff.PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestClassifyWaitErrorOnChainFailureRetries(t *testing.T) {
	waitErr := fmt.Errorf("%w: map[InstructionError:[2 map[Custom:40]]]", solclient.ErrTransactionFailed)

	err := classifyWaitError(waitErr)

	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm), "non-slippage execution failures retry with a fresh swap")
	var subErr *dex.SubmissionError
	assert.ErrorAs(t, err, &subErr)
	assert.NotErrorIs(t, err, dex.ErrConfirmationTimeout)
}

func TestClassifyWaitErrorTimeoutStaysTimeout(t *testing.T) {
	err := classifyWaitError(errors.New("confirmation timeout"))

	assert.ErrorIs(t, err, dex.ErrConfirmationTimeout)
	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm))
}

func TestBuyWrapsUnparseableImpact(t *testing.T) {
	backend := testBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"inAmount":"100000000","outAmount":"42000","priceImpactPct":"???"}`))
	})

	_, err := backend.Buy(context.Background(), buyParams())
	require.Error(t, err)

	var quoteErr *dex.QuoteError
	assert.ErrorAs(t, err, &quoteErr)
}
