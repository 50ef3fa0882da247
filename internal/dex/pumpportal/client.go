// =============================
// File: internal/dex/pumpportal/client.go
// =============================
package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIClient talks to the PumpPortal trade-local API, which builds unsigned
// bonding-curve transactions that we sign and submit ourselves.
type APIClient struct {
	httpClient *http.Client
	tradeURL   string
	logger     *zap.Logger
}

func NewAPIClient(tradeURL string, logger *zap.Logger) *APIClient {
	return &APIClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		tradeURL:   tradeURL,
		logger:     logger.Named("pumpportal-api"),
	}
}

type tradeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           uint64  `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`    // percent
	PriorityFee      float64 `json:"priorityFee"` // SOL
	Pool             string  `json:"pool"`
}

type tradeResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"` // base64
	Error       string `json:"error"`
}

// BuildBuyTransaction requests an unsigned buy transaction for the pump
// bonding curve and returns it base64-encoded along with the raw response.
func (c *APIClient) BuildBuyTransaction(ctx context.Context, authority, mint string, amountLamports uint64, slippagePct, priorityFeeSOL float64) (string, json.RawMessage, error) {
	payload, err := json.Marshal(tradeRequest{
		PublicKey:        authority,
		Action:           "buy",
		Mint:             mint,
		Amount:           amountLamports,
		DenominatedInSol: "true",
		Slippage:         slippagePct,
		PriorityFee:      priorityFeeSOL,
		Pool:             "pump",
	})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tradeURL, bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("pumpportal API error (%d): %s", resp.StatusCode, string(body))
	}

	var trade tradeResponse
	if err := json.Unmarshal(body, &trade); err != nil {
		return "", nil, fmt.Errorf("failed to decode trade response: %w", err)
	}
	if !trade.Success || trade.Transaction == "" {
		if trade.Error == "" {
			trade.Error = "unknown error"
		}
		return "", nil, fmt.Errorf("pumpportal returned unsuccessful response: %s", trade.Error)
	}

	c.logger.Debug("Built buy transaction", zap.String("mint", mint))
	return trade.Transaction, body, nil
}
