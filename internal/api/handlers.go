// ==============================
// File: internal/api/handlers.go
// ==============================
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/buyback"
	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
	"github.com/didier3529/casino-sol-sub000/internal/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	checkCtx := c.Request.Context()

	status := gin.H{"database": "ok", "rpc": "ok"}
	healthy := true

	if err := s.store.Ping(checkCtx); err != nil {
		status["database"] = err.Error()
		healthy = false
	}
	if _, err := s.chain.GetVersion(checkCtx); err != nil {
		status["rpc"] = err.Error()
		healthy = false
	}

	if spendable, err := s.ledger.ComputeSpendable(checkCtx); err == nil {
		status["vault_sol"] = types.LamportsToSOL(spendable.VaultBalance)
		status["treasury_sol"] = types.LamportsToSOL(spendable.TreasuryBalance)
	}
	if failed, err := s.store.CountFailedEventsSince(checkCtx, time.Now().Add(-24*time.Hour)); err == nil {
		status["failed_last_24h"] = failed
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"success": healthy, "data": status})
}

func (s *Server) handleStatus(c *gin.Context) {
	cfg, err := s.store.GetBuybackConfig(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	spendable, err := s.ledger.ComputeSpendable(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, fmt.Errorf("failed to read balances: %w", err))
		return
	}

	respondOK(c, gin.H{
		"active":                 cfg.Active,
		"dry_run":                cfg.DryRun,
		"mode":                   cfg.Mode,
		"target_mint":            cfg.TargetMint,
		"last_run_at":            cfg.LastRunAt,
		"vault_sol":              types.LamportsToSOL(spendable.VaultBalance),
		"treasury_sol":           types.LamportsToSOL(spendable.TreasuryBalance),
		"vault_excess_sol":       types.LamportsToSOL(spendable.VaultExcess),
		"treasury_spendable_sol": types.LamportsToSOL(spendable.TreasurySpendable),
		"total_available_sol":    types.LamportsToSOL(spendable.TotalAvailable),
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.store.GetBuybackConfig(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, cfg)
}

// configPatch is the allow-list of operator-editable fields. Anything else in
// the request body is ignored.
type configPatch struct {
	Active           *bool   `json:"active"`
	DryRun           *bool   `json:"dry_run"`
	Mode             *string `json:"mode"`
	TargetMint       *string `json:"target_mint"`
	PumpMint         *string `json:"pump_mint"`
	MaxSpendLamports *uint64 `json:"max_spend_lamports"`
	SlippageBps      *uint64 `json:"slippage_bps"`
	CooldownSeconds  *int64  `json:"cooldown_seconds"`
}

func (s *Server) handlePatchConfig(c *gin.Context) {
	var patch configPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	updates := make(map[string]interface{})
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	if patch.DryRun != nil {
		updates["dry_run"] = *patch.DryRun
	}
	if patch.Mode != nil {
		if !models.ValidMode(*patch.Mode) {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid mode %q", *patch.Mode))
			return
		}
		updates["mode"] = *patch.Mode
	}
	if patch.TargetMint != nil {
		if *patch.TargetMint != "" {
			if _, err := solana.PublicKeyFromBase58(*patch.TargetMint); err != nil {
				respondError(c, http.StatusBadRequest, fmt.Errorf("invalid target mint: %w", err))
				return
			}
		}
		updates["target_mint"] = *patch.TargetMint
	}
	if patch.PumpMint != nil {
		if *patch.PumpMint != "" {
			if _, err := solana.PublicKeyFromBase58(*patch.PumpMint); err != nil {
				respondError(c, http.StatusBadRequest, fmt.Errorf("invalid pump mint: %w", err))
				return
			}
		}
		updates["pump_mint"] = *patch.PumpMint
	}
	if patch.MaxSpendLamports != nil {
		if *patch.MaxSpendLamports == 0 {
			respondError(c, http.StatusBadRequest, errors.New("max_spend_lamports must be positive"))
			return
		}
		updates["max_spend_lamports"] = *patch.MaxSpendLamports
	}
	if patch.SlippageBps != nil {
		if *patch.SlippageBps == 0 || *patch.SlippageBps > 10_000 {
			respondError(c, http.StatusBadRequest, errors.New("slippage_bps must be between 1 and 10000"))
			return
		}
		updates["slippage_bps"] = *patch.SlippageBps
	}
	if patch.CooldownSeconds != nil {
		if *patch.CooldownSeconds < 0 {
			respondError(c, http.StatusBadRequest, errors.New("cooldown_seconds must not be negative"))
			return
		}
		updates["cooldown_seconds"] = *patch.CooldownSeconds
	}

	if len(updates) == 0 {
		respondError(c, http.StatusBadRequest, errors.New("no editable fields in request"))
		return
	}

	cfg, err := s.store.UpdateBuybackConfig(c.Request.Context(), updates)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Config updated by operator",
		zap.String("operator", c.GetString("operator_pubkey")),
		zap.Any("fields", updates))
	respondOK(c, cfg)
}

func (s *Server) handleRun(c *gin.Context) {
	result, err := s.runner.Execute(c.Request.Context(), buyback.Options{IgnoreCooldown: true})
	if err != nil {
		switch {
		case errors.Is(err, buyback.ErrBusy):
			respondError(c, http.StatusConflict, err)
		case errors.Is(err, buyback.ErrCooldown):
			respondError(c, http.StatusTooManyRequests, err)
		case errors.Is(err, buyback.ErrInactive), errors.Is(err, buyback.ErrNoTargetMint):
			respondError(c, http.StatusBadRequest, err)
		default:
			respondError(c, http.StatusInternalServerError, err)
		}
		return
	}

	s.logger.Info("Manual buyback triggered",
		zap.String("operator", c.GetString("operator_pubkey")),
		zap.Bool("executed", result.Executed))
	respondOK(c, result)
}

func (s *Server) handlePause(c *gin.Context) {
	s.setActive(c, false)
}

func (s *Server) handleResume(c *gin.Context) {
	s.setActive(c, true)
}

func (s *Server) setActive(c *gin.Context, active bool) {
	cfg, err := s.store.UpdateBuybackConfig(c.Request.Context(), map[string]interface{}{"active": active})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("Buyback toggled",
		zap.Bool("active", active),
		zap.String("operator", c.GetString("operator_pubkey")))
	respondOK(c, gin.H{"active": cfg.Active})
}

func (s *Server) handleListEvents(c *gin.Context) {
	limit := parseIntParam(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := parseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, err := s.store.ListBuybackEvents(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondOK(c, gin.H{"events": events, "limit": limit, "offset": offset})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.GetBuybackStats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	failedLastDay, err := s.store.CountFailedEventsSince(c.Request.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondOK(c, gin.H{
		"total_events":        stats.TotalEvents,
		"successful_events":   stats.SuccessfulEvents,
		"failed_events":       stats.FailedEvents,
		"failed_last_24h":     failedLastDay,
		"total_spent_sol":     stats.TotalSpentSOL,
		"total_tokens_bought": stats.TotalTokensBought,
		"total_tokens_burned": stats.TotalTokensBurned,
		"last_success_at":     stats.LastSuccessAt,
	})
}

func parseIntParam(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}
