// ==============================
// File: internal/buyback/executor.go
// ==============================
package buyback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/ledger"
	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
	"github.com/didier3529/casino-sol-sub000/internal/types"
)

var (
	// ErrBusy is returned when an execution is already in flight. Triggers are
	// rejected immediately, never queued.
	ErrBusy = errors.New("buyback execution already in progress")

	// ErrInactive is returned when the buyback is switched off in config.
	ErrInactive = errors.New("buyback is not active")

	// ErrCooldown is returned when the cooldown window has not elapsed.
	ErrCooldown = errors.New("buyback cooldown has not elapsed")

	// ErrNoTargetMint is returned when no target token is configured.
	ErrNoTargetMint = errors.New("no target mint configured")
)

// DefaultManualSpacing is the minimum spacing between manual triggers that
// bypass the regular cooldown.
const DefaultManualSpacing = 30 * time.Second

// Store is the slice of persistence the executor needs.
type Store interface {
	GetBuybackConfig(ctx context.Context) (*models.BuybackConfig, error)
	TouchLastRun(ctx context.Context, at time.Time) error
	SaveBuybackEvent(ctx context.Context, event *models.BuybackEvent) error
}

// SpendableSource computes how much SOL may be spent this cycle.
type SpendableSource interface {
	ComputeSpendable(ctx context.Context) (ledger.Spendable, error)
}

// Skimmer moves vault excess into the treasury before an aggregator buy.
type Skimmer interface {
	SkimToTreasury(ctx context.Context, amount, minVaultReserve uint64) (solana.Signature, error)
}

// AssetDestroyer permanently destroys purchased tokens.
type AssetDestroyer interface {
	Burn(ctx context.Context, mint solana.PublicKey, amount uint64) (solana.Signature, uint64, error)
}

// Options controls a single trigger.
type Options struct {
	// IgnoreCooldown bypasses the configured cooldown. Manual triggers set
	// this; a minimum spacing still applies so a misbehaving operator script
	// cannot hammer the chain.
	IgnoreCooldown bool
	// ManualSpacing overrides the default minimum spacing between manual
	// triggers. Zero means DefaultManualSpacing.
	ManualSpacing time.Duration
}

// Result describes what one execution cycle did.
type Result struct {
	Executed      bool   `json:"executed"`
	DryRun        bool   `json:"dry_run"`
	Skipped       bool   `json:"skipped"`
	SkipReason    string `json:"skip_reason,omitempty"`
	Mode          string `json:"mode,omitempty"`
	SpentLamports uint64 `json:"spent_lamports"`
	TokensBought  uint64 `json:"tokens_bought"`
	TokensBurned  uint64 `json:"tokens_burned"`
	Signature     string `json:"signature,omitempty"`
	BurnSignature string `json:"burn_signature,omitempty"`
	BurnError     string `json:"burn_error,omitempty"`
}

// Executor runs one buyback cycle at a time: compute spendable, consolidate,
// purchase, burn, record. Single-flight is enforced with a try-lock so
// overlapping triggers fail fast.
type Executor struct {
	store         Store
	ledger        SpendableSource
	skimmer       Skimmer
	burner        AssetDestroyer
	backends      map[string]dex.Backend
	manualSpacing time.Duration
	logger        *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewExecutor(store Store, source SpendableSource, skimmer Skimmer, burner AssetDestroyer, backends map[string]dex.Backend, logger *zap.Logger) *Executor {
	return &Executor{
		store:         store,
		ledger:        source,
		skimmer:       skimmer,
		burner:        burner,
		backends:      backends,
		manualSpacing: DefaultManualSpacing,
		logger:        logger.Named("executor"),
		now:           time.Now,
	}
}

// Execute runs one buyback cycle. Returns ErrBusy immediately if another
// cycle holds the lock.
func (e *Executor) Execute(ctx context.Context, opts Options) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	defer e.mu.Unlock()

	cfg, err := e.store.GetBuybackConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyback config: %w", err)
	}

	if err := e.checkEligibility(cfg, opts); err != nil {
		return nil, err
	}

	targetMint, err := solana.PublicKeyFromBase58(cfg.MintForMode())
	if err != nil {
		return nil, fmt.Errorf("invalid target mint %q: %w", cfg.MintForMode(), err)
	}

	backend, ok := e.backends[cfg.Mode]
	if !ok {
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Mode)
	}

	spendable, err := e.ledger.ComputeSpendable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute spendable balances: %w", err)
	}

	// Nothing to spend: skip quietly without consuming the cooldown, so the
	// next deposit can trigger a buyback immediately.
	if spendable.TotalAvailable == 0 {
		e.logger.Debug("Nothing available to spend, skipping cycle")
		return &Result{Skipped: true, SkipReason: "nothing available to spend", Mode: cfg.Mode}, nil
	}

	spend := spendable.TotalAvailable
	if spend > cfg.MaxSpendLamports {
		spend = cfg.MaxSpendLamports
	}

	startedAt := e.now()

	e.logger.Info("Starting buyback cycle",
		zap.String("mode", cfg.Mode),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Float64("spend_sol", types.LamportsToSOL(spend)),
		zap.Float64("available_sol", types.LamportsToSOL(spendable.TotalAvailable)))

	if cfg.DryRun {
		if err := e.store.TouchLastRun(ctx, startedAt); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
		return e.recordDryRun(ctx, cfg, spend, startedAt)
	}

	// Aggregator buys spend from the treasury, so vault excess is skimmed
	// over first. Bonding-curve buys spend directly.
	if cfg.Mode == models.ModeJupiter {
		spend = e.consolidate(ctx, spendable, spend)
		if spend == 0 {
			e.logger.Warn("No treasury funds available after skim attempt, skipping purchase")
			// The skim may have moved funds, so this skip consumes the
			// cooldown unlike the nothing-available one above.
			e.touchLastRun(ctx, startedAt)
			return &Result{Skipped: true, SkipReason: "no treasury funds available", Mode: cfg.Mode}, nil
		}
	}

	buyResult, err := backend.Buy(ctx, dex.BuyParams{
		SpendLamports: spend,
		TargetMint:    targetMint,
		SlippageBps:   cfg.SlippageBps,
	})
	if err != nil {
		// A failed purchase does not consume the cooldown: the next tick
		// retries it.
		e.recordFailure(ctx, cfg, spend, startedAt, err)
		return nil, fmt.Errorf("purchase failed: %w", err)
	}
	e.touchLastRun(ctx, startedAt)

	result := &Result{
		Executed:      true,
		Mode:          cfg.Mode,
		SpentLamports: spend,
		TokensBought:  buyResult.TokensBought,
		Signature:     buyResult.Signature.String(),
	}

	burnSig, burned, burnErr := e.burner.Burn(ctx, targetMint, buyResult.TokensBought)
	if burnErr != nil {
		// The purchase is final even when the burn fails: record it so the
		// tokens are visible for a later manual burn.
		e.logger.Error("Burn failed after successful purchase", zap.Error(burnErr))
		result.BurnError = burnErr.Error()
	} else {
		result.TokensBurned = burned
		result.BurnSignature = burnSig.String()
	}

	event := &models.BuybackEvent{
		TransactionSignature: buyResult.Signature.String(),
		Mode:                 cfg.Mode,
		Success:              true,
		SpentLamports:        spend,
		TokensBought:         buyResult.TokensBought,
		TokensBurned:         result.TokensBurned,
		BurnSignature:        result.BurnSignature,
		QuotePayload:         buyResult.QuotePayload,
		SwapPayload:          buyResult.SwapPayload,
	}
	if burnErr != nil {
		event.ErrorMessage = fmt.Sprintf("burn failed: %v", burnErr)
	}
	if err := e.store.SaveBuybackEvent(ctx, event); err != nil {
		// The purchase is done; losing the record is bad but not fatal.
		e.logger.Error("Failed to record buyback event", zap.Error(err))
	}

	e.logger.Info("Buyback cycle complete",
		zap.String("signature", result.Signature),
		zap.Uint64("tokens_bought", result.TokensBought),
		zap.Uint64("tokens_burned", result.TokensBurned))
	return result, nil
}

// touchLastRun is used once funds have moved, where losing the timestamp is
// preferable to failing the cycle.
func (e *Executor) touchLastRun(ctx context.Context, at time.Time) {
	if err := e.store.TouchLastRun(ctx, at); err != nil {
		e.logger.Error("Failed to record run timestamp", zap.Error(err))
	}
}

func (e *Executor) checkEligibility(cfg *models.BuybackConfig, opts Options) error {
	if !cfg.Active {
		return ErrInactive
	}
	if cfg.MintForMode() == "" {
		return ErrNoTargetMint
	}
	if cfg.LastRunAt == nil {
		return nil
	}

	elapsed := e.now().Sub(*cfg.LastRunAt)
	if opts.IgnoreCooldown {
		spacing := opts.ManualSpacing
		if spacing <= 0 {
			spacing = e.manualSpacing
		}
		if elapsed < spacing {
			return fmt.Errorf("%w: manual triggers require %s spacing", ErrCooldown, spacing)
		}
		return nil
	}
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if elapsed < cooldown {
		return fmt.Errorf("%w: %s remaining", ErrCooldown, (cooldown - elapsed).Round(time.Second))
	}
	return nil
}

// consolidate skims vault excess into the treasury and returns how much the
// treasury can fund. The skim instruction may not exist on the deployed
// program, so failures degrade to treasury-only spending.
func (e *Executor) consolidate(ctx context.Context, spendable ledger.Spendable, spend uint64) uint64 {
	treasuryFunds := spendable.TreasurySpendable

	if spendable.VaultExcess > 0 {
		skimAmount := spendable.VaultExcess
		if skimAmount > spend {
			skimAmount = spend
		}
		if _, err := e.skimmer.SkimToTreasury(ctx, skimAmount, ledger.VaultReserveLamports); err != nil {
			e.logger.Warn("Skim to treasury failed, continuing with treasury funds only", zap.Error(err))
		} else {
			treasuryFunds += skimAmount
		}
	}

	if spend > treasuryFunds {
		spend = treasuryFunds
	}
	return spend
}

func (e *Executor) recordDryRun(ctx context.Context, cfg *models.BuybackConfig, spend uint64, startedAt time.Time) (*Result, error) {
	event := &models.BuybackEvent{
		TransactionSignature: "dry-run-" + strconv.FormatInt(startedAt.UnixNano(), 10),
		Mode:                 cfg.Mode,
		DryRun:               true,
		Success:              true,
		SpentLamports:        spend,
	}
	if err := e.store.SaveBuybackEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record dry-run event: %w", err)
	}
	e.logger.Info("Dry run complete, no funds moved",
		zap.Float64("would_spend_sol", types.LamportsToSOL(spend)))
	return &Result{
		Executed:      true,
		DryRun:        true,
		Mode:          cfg.Mode,
		SpentLamports: spend,
	}, nil
}

func (e *Executor) recordFailure(ctx context.Context, cfg *models.BuybackConfig, spend uint64, startedAt time.Time, cause error) {
	event := &models.BuybackEvent{
		TransactionSignature: "error-" + strconv.FormatInt(startedAt.UnixNano(), 10),
		Mode:                 cfg.Mode,
		DryRun:               cfg.DryRun,
		Success:              false,
		SpentLamports:        spend,
		ErrorMessage:         cause.Error(),
	}
	if err := e.store.SaveBuybackEvent(ctx, event); err != nil {
		e.logger.Error("Failed to record failure event", zap.Error(err))
	}
}
