// ====================================
// File: cmd/buybackd/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/didier3529/casino-sol-sub000/internal/app"
	"github.com/didier3529/casino-sol-sub000/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	development := flag.Bool("dev", false, "enable development logging")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		LogFile:     "buyback.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: *development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting buyback service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := app.NewRunner(log.Logger)
	if err := runner.Initialize(ctx, *configPath); err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Service exited with error", zap.Error(err))
	}
	log.Info("Service stopped")
}
