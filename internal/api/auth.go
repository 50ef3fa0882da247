// ==============================
// File: internal/api/auth.go
// ==============================
package api

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

// maxSignatureSkew bounds how stale a signed request may be. Keeps captured
// requests from being replayed later.
const maxSignatureSkew = 5 * time.Minute

const (
	headerOperatorPubkey    = "X-Operator-Pubkey"
	headerOperatorSignature = "X-Operator-Signature"
	headerOperatorTimestamp = "X-Operator-Timestamp"
)

// operatorAuth verifies an ed25519 signature over "timestamp\nmethod\npath"
// from an allow-listed operator key. Mutating endpoints require it.
func operatorAuth(allowedKeys []string, logger *zap.Logger) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedKeys))
	for _, key := range allowedKeys {
		allowed[key] = struct{}{}
	}

	return func(c *gin.Context) {
		pubkeyB58 := c.GetHeader(headerOperatorPubkey)
		sigB58 := c.GetHeader(headerOperatorSignature)
		tsStr := c.GetHeader(headerOperatorTimestamp)

		if pubkeyB58 == "" || sigB58 == "" || tsStr == "" {
			abortUnauthorized(c, "missing operator auth headers")
			return
		}

		if _, ok := allowed[pubkeyB58]; !ok {
			logger.Warn("Rejected request from unlisted operator key", zap.String("pubkey", pubkeyB58))
			abortUnauthorized(c, "operator key not authorized")
			return
		}

		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			abortUnauthorized(c, "invalid timestamp")
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < -maxSignatureSkew || skew > maxSignatureSkew {
			abortUnauthorized(c, "signature timestamp outside allowed window")
			return
		}

		pubkey, err := base58.Decode(pubkeyB58)
		if err != nil || len(pubkey) != ed25519.PublicKeySize {
			abortUnauthorized(c, "invalid operator public key")
			return
		}
		sig, err := base58.Decode(sigB58)
		if err != nil || len(sig) != ed25519.SignatureSize {
			abortUnauthorized(c, "invalid signature encoding")
			return
		}

		message := fmt.Sprintf("%s\n%s\n%s", tsStr, c.Request.Method, c.Request.URL.Path)
		if !ed25519.Verify(ed25519.PublicKey(pubkey), []byte(message), sig) {
			logger.Warn("Rejected request with bad signature", zap.String("pubkey", pubkeyB58))
			abortUnauthorized(c, "signature verification failed")
			return
		}

		c.Set("operator_pubkey", pubkeyB58)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   reason,
	})
}
