package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hl-rebalancer/internal/app"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	envPath := flag.String("env", ".env", "path to env file with wallet credentials")
	dryRun := flag.Bool("dry-run", false, "simulate orders without submitting them")
	wallet := flag.Int("wallet", 0, "run only this wallet id (0 runs every configured wallet)")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envPath, err)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded",
		zap.String("path", *configPath),
		zap.String("rest", cfg.REST.BaseURL),
		zap.Bool("mainnet", cfg.IsMainnet()),
		zap.Bool("dry_run", *dryRun),
		zap.Int("wallet", *wallet),
	)

	application, err := app.New(cfg, app.Options{WalletID: *wallet, DryRun: *dryRun}, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	log.Info("app initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}
