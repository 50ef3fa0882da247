// internal/storage/models/buyback_config.go
package models

import "time"

// Execution modes. Jupiter routes through the aggregator for migrated tokens;
// pumpfun buys directly on the bonding curve.
const (
	ModeJupiter = "jupiter"
	ModePumpfun = "pumpfun"
)

// BuybackConfig is the singleton operational configuration row. Exactly one
// row exists; EnsureBuybackConfig seeds it with safe defaults.
type BuybackConfig struct {
	BaseModel
	Active           bool       `gorm:"not null;default:false"`
	DryRun           bool       `gorm:"not null;default:true"`
	Mode             string     `gorm:"not null;type:varchar(20)"`
	TargetMint       string     `gorm:"not null;type:varchar(44)"`
	PumpMint         string     `gorm:"type:varchar(44)"`
	MaxSpendLamports uint64     `gorm:"not null"`
	SlippageBps      uint64     `gorm:"not null"`
	CooldownSeconds  int64      `gorm:"not null"`
	LastRunAt        *time.Time `gorm:"index"`
}

func (BuybackConfig) TableName() string {
	return "buyback_configs"
}

// DefaultBuybackConfig returns the seed row. Inactive and dry-run so a fresh
// deployment never spends real funds until an operator opts in.
func DefaultBuybackConfig() *BuybackConfig {
	return &BuybackConfig{
		Active:           false,
		DryRun:           true,
		Mode:             ModeJupiter,
		TargetMint:       "",
		MaxSpendLamports: 1_000_000_000, // 1 SOL
		SlippageBps:      100,
		CooldownSeconds:  3600,
	}
}

// ValidMode reports whether mode names a known execution backend.
func ValidMode(mode string) bool {
	return mode == ModeJupiter || mode == ModePumpfun
}

// MintForMode returns the mint the given mode trades. Bonding-curve buys use
// the pre-migration pump mint when one is set; the aggregator always trades
// the canonical target mint.
func (c *BuybackConfig) MintForMode() string {
	if c.Mode == ModePumpfun && c.PumpMint != "" {
		return c.PumpMint
	}
	return c.TargetMint
}
