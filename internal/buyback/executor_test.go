// ==============================
// File: internal/buyback/executor_test.go
// ==============================
package buyback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/ledger"
	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
)

const testMint = "So11111111111111111111111111111111111111112"

type fakeStore struct {
	mu      sync.Mutex
	cfg     *models.BuybackConfig
	touched []time.Time
	events  []*models.BuybackEvent
}

func (s *fakeStore) GetBuybackConfig(context.Context) (*models.BuybackConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := *s.cfg
	return &cfg, nil
}

func (s *fakeStore) TouchLastRun(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, at)
	return nil
}

func (s *fakeStore) SaveBuybackEvent(_ context.Context, event *models.BuybackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type fakeSource struct {
	spendable ledger.Spendable
	err       error
}

func (s *fakeSource) ComputeSpendable(context.Context) (ledger.Spendable, error) {
	return s.spendable, s.err
}

type fakeSkimmer struct {
	mu      sync.Mutex
	err     error
	amounts []uint64
}

func (s *fakeSkimmer) SkimToTreasury(_ context.Context, amount, _ uint64) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amounts = append(s.amounts, amount)
	return solana.Signature{0x05}, s.err
}

type fakeBurner struct {
	err    error
	burned uint64
}

func (b *fakeBurner) Burn(_ context.Context, _ solana.PublicKey, amount uint64) (solana.Signature, uint64, error) {
	if b.err != nil {
		return solana.Signature{}, 0, b.err
	}
	if b.burned != 0 {
		return solana.Signature{0x07}, b.burned, nil
	}
	return solana.Signature{0x07}, amount, nil
}

type fakeBackend struct {
	mu      sync.Mutex
	name    string
	result  *dex.BuyResult
	err     error
	params  []dex.BuyParams
	started chan struct{} // closed when Buy is entered, if set
	release chan struct{} // Buy blocks on this, if set
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Buy(ctx context.Context, params dex.BuyParams) (*dex.BuyResult, error) {
	b.mu.Lock()
	b.params = append(b.params, params)
	b.mu.Unlock()
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

func activeConfig() *models.BuybackConfig {
	return &models.BuybackConfig{
		Active:           true,
		DryRun:           false,
		Mode:             models.ModePumpfun,
		TargetMint:       testMint,
		MaxSpendLamports: 2_000_000_000,
		SlippageBps:      100,
		CooldownSeconds:  3600,
	}
}

func newTestExecutor(store *fakeStore, source *fakeSource, skimmer *fakeSkimmer, burner *fakeBurner, backends map[string]dex.Backend) *Executor {
	return NewExecutor(store, source, skimmer, burner, backends, zap.NewNop())
}

func buySuccess() *dex.BuyResult {
	return &dex.BuyResult{
		Signature:    solana.Signature{0x01},
		TokensBought: 42_000,
	}
}

func TestExecuteRejectsInactiveConfig(t *testing.T) {
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.Active = false
	exec := newTestExecutor(store, &fakeSource{}, &fakeSkimmer{}, &fakeBurner{}, nil)

	_, err := exec.Execute(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrInactive)
	assert.Empty(t, store.touched)
}

func TestExecuteRejectsMissingTargetMint(t *testing.T) {
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.TargetMint = ""
	exec := newTestExecutor(store, &fakeSource{}, &fakeSkimmer{}, &fakeBurner{}, nil)

	_, err := exec.Execute(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoTargetMint)
}

func TestExecuteEnforcesCooldown(t *testing.T) {
	lastRun := time.Now().Add(-10 * time.Minute)
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.LastRunAt = &lastRun
	exec := newTestExecutor(store, &fakeSource{}, &fakeSkimmer{}, &fakeBurner{}, nil)

	_, err := exec.Execute(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrCooldown)
}

func TestExecuteManualTriggerBypassesCooldownWithSpacing(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	// Within the cooldown but past the manual spacing.
	lastRun := time.Now().Add(-time.Minute)
	store.cfg.LastRunAt = &lastRun

	result, err := exec.Execute(context.Background(), Options{IgnoreCooldown: true})
	require.NoError(t, err)
	assert.True(t, result.Executed)

	// Within the manual spacing: rejected even with the bypass.
	lastRun = time.Now().Add(-5 * time.Second)
	store.cfg.LastRunAt = &lastRun

	_, err = exec.Execute(context.Background(), Options{IgnoreCooldown: true})
	assert.ErrorIs(t, err, ErrCooldown)
}

func TestExecuteSkipsWhenNothingAvailable(t *testing.T) {
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{}, nil)

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	// A skip consumes neither the cooldown nor the event history.
	assert.Empty(t, store.touched)
	assert.Empty(t, store.events)
}

func TestExecuteClampsSpendToMax(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.MaxSpendLamports = 300_000_000
	source := &fakeSource{spendable: ledger.Spendable{
		VaultExcess:    1_500_000_000,
		TotalAvailable: 1_500_000_000,
	}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(300_000_000), result.SpentLamports)
	require.Len(t, backend.params, 1)
	assert.Equal(t, uint64(300_000_000), backend.params[0].SpendLamports)
}

func TestExecuteDryRunMovesNoFunds(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.DryRun = true
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, uint64(100_000_000), result.SpentLamports)

	assert.Empty(t, backend.params, "dry run must not reach the backend")
	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.True(t, event.DryRun)
	assert.True(t, event.Success)
	assert.Contains(t, event.TransactionSignature, "dry-run-")
	assert.Len(t, store.touched, 1, "dry run still consumes the cooldown")
}

func TestExecuteRejectsConcurrentTriggers(t *testing.T) {
	backend := &fakeBackend{
		name:    models.ModePumpfun,
		result:  buySuccess(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	done := make(chan error, 1)
	go func() {
		_, err := exec.Execute(context.Background(), Options{})
		done <- err
	}()

	<-backend.started
	_, err := exec.Execute(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrBusy)

	close(backend.release)
	require.NoError(t, <-done)
}

func TestExecuteJupiterSkimsVaultExcessFirst(t *testing.T) {
	backend := &fakeBackend{name: models.ModeJupiter, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.Mode = models.ModeJupiter
	skimmer := &fakeSkimmer{}
	source := &fakeSource{spendable: ledger.Spendable{
		VaultExcess:       400_000_000,
		TreasurySpendable: 50_000_000,
		TotalAvailable:    450_000_000,
	}}
	exec := newTestExecutor(store, source, skimmer, &fakeBurner{},
		map[string]dex.Backend{models.ModeJupiter: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, skimmer.amounts, 1)
	assert.Equal(t, uint64(400_000_000), skimmer.amounts[0])
	assert.Equal(t, uint64(450_000_000), result.SpentLamports)
}

func TestExecuteJupiterFallsBackToTreasuryWhenSkimFails(t *testing.T) {
	backend := &fakeBackend{name: models.ModeJupiter, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.Mode = models.ModeJupiter
	skimmer := &fakeSkimmer{err: errors.New("unknown instruction")}
	source := &fakeSource{spendable: ledger.Spendable{
		VaultExcess:       400_000_000,
		TreasurySpendable: 50_000_000,
		TotalAvailable:    450_000_000,
	}}
	exec := newTestExecutor(store, source, skimmer, &fakeBurner{},
		map[string]dex.Backend{models.ModeJupiter: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), result.SpentLamports)
}

func TestExecuteJupiterSkipsWhenNoTreasuryFundsAfterFailedSkim(t *testing.T) {
	backend := &fakeBackend{name: models.ModeJupiter, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.Mode = models.ModeJupiter
	skimmer := &fakeSkimmer{err: errors.New("unknown instruction")}
	source := &fakeSource{spendable: ledger.Spendable{
		VaultExcess:    400_000_000,
		TotalAvailable: 400_000_000,
	}}
	exec := newTestExecutor(store, source, skimmer, &fakeBurner{},
		map[string]dex.Backend{models.ModeJupiter: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, backend.params)
	assert.Len(t, store.touched, 1, "failed consolidation still consumes the cooldown")
}

func TestExecuteRecordsFailureEvent(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, err: dex.ErrNoTokensAcquired}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	_, err := exec.Execute(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dex.ErrNoTokensAcquired)

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.False(t, event.Success)
	assert.Contains(t, event.TransactionSignature, "error-")
	assert.NotEmpty(t, event.ErrorMessage)
	assert.Empty(t, store.touched, "a failed purchase must not consume the cooldown")
}

func TestExecuteFailedPurchaseDoesNotConsumeCooldown(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, err: errors.New("node is behind")}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	_, err := exec.Execute(context.Background(), Options{})
	require.Error(t, err)
	assert.Empty(t, store.touched)

	// The next tick retries immediately: last_run_at was not advanced, so
	// the cooldown does not block it.
	backend.err = nil
	backend.result = buySuccess()

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Len(t, store.touched, 1, "only the successful cycle advances the timestamp")
}

func TestExecuteFailureSignaturesAreDistinct(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, err: errors.New("node is behind")}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	// Two failed cycles in the same second must not collide on the unique
	// signature column, which would silently drop the second record.
	_, err := exec.Execute(context.Background(), Options{})
	require.Error(t, err)
	_, err = exec.Execute(context.Background(), Options{})
	require.Error(t, err)

	require.Len(t, store.events, 2)
	assert.NotEqual(t, store.events[0].TransactionSignature, store.events[1].TransactionSignature)
}

func TestExecuteRecordsPurchaseWhenBurnFails(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	burner := &fakeBurner{err: errors.New("burn rejected")}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, burner,
		map[string]dex.Backend{models.ModePumpfun: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err, "a failed burn must not fail the cycle")
	assert.Equal(t, uint64(42_000), result.TokensBought)
	assert.Zero(t, result.TokensBurned)
	assert.NotEmpty(t, result.BurnError)

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.True(t, event.Success)
	assert.Zero(t, event.TokensBurned)
	assert.Empty(t, event.BurnSignature)
	assert.Contains(t, event.ErrorMessage, "burn failed")
}

func TestExecutePumpfunPrefersPumpMint(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	store.cfg.PumpMint = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	_, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, backend.params, 1)
	assert.Equal(t, store.cfg.PumpMint, backend.params[0].TargetMint.String())
}

func TestExecuteSuccessfulCycleRecordsEverything(t *testing.T) {
	backend := &fakeBackend{name: models.ModePumpfun, result: buySuccess()}
	store := &fakeStore{cfg: activeConfig()}
	source := &fakeSource{spendable: ledger.Spendable{TotalAvailable: 100_000_000}}
	exec := newTestExecutor(store, source, &fakeSkimmer{}, &fakeBurner{},
		map[string]dex.Backend{models.ModePumpfun: backend})

	result, err := exec.Execute(context.Background(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, uint64(42_000), result.TokensBought)
	assert.Equal(t, uint64(42_000), result.TokensBurned)
	assert.NotEmpty(t, result.Signature)
	assert.NotEmpty(t, result.BurnSignature)

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.True(t, event.Success)
	assert.Equal(t, result.Signature, event.TransactionSignature)
	assert.Equal(t, uint64(42_000), event.TokensBurned)
	assert.Len(t, store.touched, 1)
}
