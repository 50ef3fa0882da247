// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
)

// Stats is an aggregate view over the event history.
type Stats struct {
	TotalEvents       int64      `json:"total_events"`
	SuccessfulEvents  int64      `json:"successful_events"`
	FailedEvents      int64      `json:"failed_events"`
	TotalSpentSOL     float64    `json:"total_spent_sol"`
	TotalTokensBought uint64     `json:"total_tokens_bought"`
	TotalTokensBurned uint64     `json:"total_tokens_burned"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
}

// Storage is the persistence boundary for buyback configuration and the
// append-only event history.
type Storage interface {
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error

	// EnsureBuybackConfig seeds the singleton config row if missing.
	EnsureBuybackConfig(ctx context.Context) (*models.BuybackConfig, error)
	GetBuybackConfig(ctx context.Context) (*models.BuybackConfig, error)
	// UpdateBuybackConfig applies the given column updates to the singleton
	// row and returns the updated config.
	UpdateBuybackConfig(ctx context.Context, updates map[string]interface{}) (*models.BuybackConfig, error)
	// TouchLastRun records the start of an execution cycle for cooldown
	// accounting.
	TouchLastRun(ctx context.Context, at time.Time) error

	// SaveBuybackEvent appends an event. Saving an event whose transaction
	// signature already exists is a no-op.
	SaveBuybackEvent(ctx context.Context, event *models.BuybackEvent) error
	ListBuybackEvents(ctx context.Context, limit, offset int) ([]*models.BuybackEvent, error)
	GetBuybackStats(ctx context.Context) (*Stats, error)
	CountFailedEventsSince(ctx context.Context, since time.Time) (int64, error)

	Close() error
}
