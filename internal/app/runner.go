// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/didier3529/casino-sol-sub000/internal/api"
	solclient "github.com/didier3529/casino-sol-sub000/internal/blockchain/solana"
	"github.com/didier3529/casino-sol-sub000/internal/burner"
	"github.com/didier3529/casino-sol-sub000/internal/buyback"
	"github.com/didier3529/casino-sol-sub000/internal/config"
	"github.com/didier3529/casino-sol-sub000/internal/dex"
	"github.com/didier3529/casino-sol-sub000/internal/dex/jupiter"
	"github.com/didier3529/casino-sol-sub000/internal/dex/pumpportal"
	"github.com/didier3529/casino-sol-sub000/internal/ledger"
	"github.com/didier3529/casino-sol-sub000/internal/storage"
	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
	"github.com/didier3529/casino-sol-sub000/internal/storage/postgres"
	"github.com/didier3529/casino-sol-sub000/internal/wallet"
)

// Runner wires the service together and runs it until a shutdown signal.
type Runner struct {
	logger *zap.Logger

	cfg       *config.Config
	solClient *solclient.Client
	store     storage.Storage
	authority *wallet.Wallet
	executor  *buyback.Executor
	scheduler *buyback.Scheduler
	server    *api.Server
	shutdown  *ShutdownHandler
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{
		logger:   logger,
		shutdown: NewShutdownHandler(logger.Named("shutdown"), 30*time.Second),
	}
}

// Initialize loads config and builds the dependency graph.
func (r *Runner) Initialize(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	r.cfg = cfg

	programID, err := solana.PublicKeyFromBase58(cfg.CasinoProgram)
	if err != nil {
		return fmt.Errorf("invalid casino program id: %w", err)
	}

	r.solClient = solclient.NewClient(cfg.RPCList[0], r.logger)

	r.authority, err = wallet.NewWallet(cfg.AuthorityKey)
	if err != nil {
		return fmt.Errorf("failed to load authority wallet: %w", err)
	}
	r.logger.Info("Authority wallet loaded", zap.String("pubkey", r.authority.String()))

	r.store, err = postgres.NewStorage(cfg.PostgresURL, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	r.shutdown.AddFunc("storage", r.store.Close)

	if err := r.store.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if _, err := r.store.EnsureBuybackConfig(ctx); err != nil {
		return fmt.Errorf("failed to ensure buyback config: %w", err)
	}

	accounts, err := ledger.DeriveAccounts(programID)
	if err != nil {
		return fmt.Errorf("failed to derive custodial accounts: %w", err)
	}
	r.logger.Info("Custodial accounts derived",
		zap.String("casino", accounts.Casino.String()),
		zap.String("vault", accounts.Vault.String()),
		zap.String("treasury", accounts.Treasury.String()))

	funds := ledger.New(r.solClient, accounts, r.logger)
	skimmer := ledger.NewSkimmer(r.solClient, r.authority, accounts, programID, r.logger)
	destroyer := burner.NewBurner(r.solClient, r.authority, r.logger)

	jupiterAPI := jupiter.NewAPIClient(cfg.JupiterQuoteURL, cfg.JupiterSwapURL, r.logger)
	pumpAPI := pumpportal.NewAPIClient(cfg.PumpPortalURL, r.logger)
	backends := map[string]dex.Backend{
		models.ModeJupiter: jupiter.NewBackend(jupiterAPI, r.solClient, r.authority, r.logger),
		models.ModePumpfun: pumpportal.NewBackend(pumpAPI, r.solClient, r.authority, cfg.PriorityFeeSOL, r.logger),
	}

	r.executor = buyback.NewExecutor(r.store, funds, skimmer, destroyer, backends, r.logger)
	r.scheduler = buyback.NewScheduler(r.store, r.executor,
		time.Duration(cfg.FastIntervalSec)*time.Second,
		cfg.AggregatorCronSpec,
		r.logger)
	r.server = api.NewServer(cfg.APIListen, r.store, r.executor, funds, r.solClient, cfg.OperatorKeys, r.logger)

	return nil
}

// Run serves until ctx is cancelled or a shutdown signal arrives.
func (r *Runner) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Info("Signal received", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return r.scheduler.Run(gCtx)
	})
	g.Go(func() error {
		return r.server.Run(gCtx)
	})

	err := g.Wait()
	if shutdownErr := r.shutdown.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
