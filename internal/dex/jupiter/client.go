// =============================
// File: internal/dex/jupiter/client.go
// =============================
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// APIClient talks to the Jupiter v6 quote/swap HTTP API.
type APIClient struct {
	httpClient *http.Client
	quoteURL   string
	swapURL    string
	logger     *zap.Logger
}

func NewAPIClient(quoteURL, swapURL string, logger *zap.Logger) *APIClient {
	return &APIClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		quoteURL:   quoteURL,
		swapURL:    swapURL,
		logger:     logger.Named("jupiter-api"),
	}
}

// Quote is a parsed quote response. Raw preserves the exact payload because
// the swap endpoint requires the quote to be echoed back verbatim.
type Quote struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`

	Raw json.RawMessage `json:"-"`
}

// PriceImpact returns the quoted price impact in percent.
func (q *Quote) PriceImpact() (float64, error) {
	if q.PriceImpactPct == "" {
		return 0, nil
	}
	impact, err := strconv.ParseFloat(q.PriceImpactPct, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price impact %q: %w", q.PriceImpactPct, err)
	}
	return impact, nil
}

// OutAmountUnits returns the quoted output amount in token base units.
func (q *Quote) OutAmountUnits() (uint64, error) {
	units, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable out amount %q: %w", q.OutAmount, err)
	}
	return units, nil
}

// GetQuote requests a swap quote for the given pair and amount.
func (c *APIClient) GetQuote(ctx context.Context, inputMint, outputMint string, amountLamports, slippageBps uint64) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amountLamports, 10))
	params.Set("slippageBps", strconv.FormatUint(slippageBps, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	quote.Raw = body

	c.logger.Debug("Received quote",
		zap.String("in_amount", quote.InAmount),
		zap.String("out_amount", quote.OutAmount),
		zap.String("price_impact_pct", quote.PriceImpactPct))
	return &quote, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

// SwapResponse carries the signed-swap transaction bound to a quote.
type SwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"` // base64
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`

	Raw json.RawMessage `json:"-"`
}

// GetSwapTransaction requests a swap transaction bound to the given quote.
func (c *APIClient) GetSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (*SwapResponse, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var swap SwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response missing transaction")
	}
	swap.Raw = body
	return &swap, nil
}

func (c *APIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
