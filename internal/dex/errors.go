// =============================
// File: internal/dex/errors.go
// =============================
package dex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfirmationTimeout is returned when a submitted transaction is not
// confirmed within the backend's confirmation window.
var ErrConfirmationTimeout = errors.New("transaction confirmation timeout")

// ErrNoTokensAcquired is returned when a reported-successful transaction
// yields no tokens. Zero-output fills happen on bonding-curve markets near
// migration boundaries.
var ErrNoTokensAcquired = errors.New("no tokens acquired from purchase")

// QuoteError indicates the external quoting service failed or returned an
// unusable response.
type QuoteError struct {
	Backend       string
	OriginalError error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("%s quote failed: %v", e.Backend, e.OriginalError)
}

func (e *QuoteError) Unwrap() error {
	return e.OriginalError
}

// PriceImpactError indicates the quoted price impact exceeds the fixed
// ceiling. Never retried.
type PriceImpactError struct {
	ImpactPct  float64
	CeilingPct float64
}

func (e *PriceImpactError) Error() string {
	return fmt.Sprintf("price impact too high: %.2f%% (max %.2f%%)", e.ImpactPct, e.CeilingPct)
}

// SubmissionError indicates the purchase transaction was rejected on
// submission.
type SubmissionError struct {
	Backend       string
	OriginalError error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s transaction submission failed: %v", e.Backend, e.OriginalError)
}

func (e *SubmissionError) Unwrap() error {
	return e.OriginalError
}

// IsSlippageExceeded reports whether the error is a slippage failure.
// These are never transient and must not be retried. The on-chain custom
// error 6001 (0x1771) surfaces as hex in preflight messages and as a decimal
// Custom code in rendered signature statuses.
func IsSlippageExceeded(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "slippage") ||
		strings.Contains(msg, "0x1771") ||
		strings.Contains(msg, "custom:6001")
}

// IsInsufficientFunds reports whether the error is an insufficient-funds
// failure. Never retried.
func IsInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient")
}
