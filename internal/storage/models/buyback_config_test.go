// internal/storage/models/buyback_config_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBuybackConfigIsSafe(t *testing.T) {
	cfg := DefaultBuybackConfig()

	assert.False(t, cfg.Active, "fresh deployments must start paused")
	assert.True(t, cfg.DryRun, "fresh deployments must start in dry-run")
	assert.Empty(t, cfg.TargetMint)
	assert.True(t, ValidMode(cfg.Mode))
	assert.Positive(t, cfg.MaxSpendLamports)
	assert.Positive(t, cfg.CooldownSeconds)
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeJupiter))
	assert.True(t, ValidMode(ModePumpfun))
	assert.False(t, ValidMode(""))
	assert.False(t, ValidMode("raydium"))
}
