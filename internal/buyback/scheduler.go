// ==============================
// File: internal/buyback/scheduler.go
// ==============================
package buyback

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/didier3529/casino-sol-sub000/internal/storage/models"
)

// cycleTimeout bounds one scheduled execution: quote, up to three submit
// attempts with confirmation waits, and the burn.
const cycleTimeout = 5 * time.Minute

// Runner triggers one buyback cycle.
type Runner interface {
	Execute(ctx context.Context, opts Options) (*Result, error)
}

// Scheduler drives automatic buybacks. Two cadences run side by side and
// each fires only when the configured mode matches:
//   - a fast ticker for bonding-curve mode, where small frequent buys track
//     the curve price;
//   - a cron schedule for aggregator mode, where batching into larger
//     infrequent swaps gets better routing.
//
// Mode is read from config on every tick, so operators can switch modes at
// runtime without a restart.
type Scheduler struct {
	store        Store
	runner       Runner
	fastInterval time.Duration
	cronSpec     string
	logger       *zap.Logger
}

func NewScheduler(store Store, runner Runner, fastInterval time.Duration, cronSpec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		runner:       runner,
		fastInterval: fastInterval,
		cronSpec:     cronSpec,
		logger:       logger.Named("scheduler"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runFastLoop(ctx)
	})
	g.Go(func() error {
		return s.runCronLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) runFastLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.fastInterval)
	defer ticker.Stop()

	s.logger.Info("Fast loop started", zap.Duration("interval", s.fastInterval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, models.ModePumpfun)
		}
	}
}

func (s *Scheduler) runCronLoop(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cronSpec, func() {
		s.tick(ctx, models.ModeJupiter)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Cron loop started", zap.String("spec", s.cronSpec))
	c.Start()
	<-ctx.Done()

	// Wait for an in-flight job before reporting stopped.
	<-c.Stop().Done()
	return ctx.Err()
}

// tick runs one scheduled cycle if the current config mode matches the
// cadence that fired.
func (s *Scheduler) tick(ctx context.Context, mode string) {
	cfg, err := s.store.GetBuybackConfig(ctx)
	if err != nil {
		s.logger.Warn("Failed to load config for scheduled cycle", zap.Error(err))
		return
	}
	if !cfg.Active || cfg.Mode != mode {
		return
	}

	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	result, err := s.runner.Execute(cycleCtx, Options{})
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, ErrCooldown), errors.Is(err, ErrInactive), errors.Is(err, ErrNoTargetMint):
		s.logger.Debug("Scheduled cycle not eligible", zap.String("mode", mode), zap.Error(err))
	case err != nil:
		s.logger.Error("Scheduled cycle failed", zap.String("mode", mode), zap.Error(err))
	case result.Skipped:
		s.logger.Debug("Scheduled cycle skipped", zap.String("reason", result.SkipReason))
	default:
		s.logger.Info("Scheduled cycle finished",
			zap.String("mode", mode),
			zap.Bool("dry_run", result.DryRun),
			zap.String("signature", result.Signature))
	}
}
