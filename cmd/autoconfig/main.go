package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"hl-rebalancer/internal/account"
	"hl-rebalancer/internal/autoconfig"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/hl/rest"
	"hl-rebalancer/internal/logging"
	"hl-rebalancer/internal/market"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "optional config path for REST and wallet settings")
	envPath := flag.String("env", ".env", "path to env file with wallet addresses")
	walletID := flag.Int("wallet", 0, "generate only this wallet id (0 means every wallet)")
	dumpSpotMeta := flag.String("dump-spot-meta", "", "write spot tokens with their pairs as JSON to this path and exit")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		fatal(err)
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	view := market.NewView(restClient, nil, market.ViewOptions{
		Dexes:   cfg.Market.Dexes,
		MetaTTL: cfg.Market.MetaTTL,
	}, log)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *dumpSpotMeta != "" {
		if err := writeSpotMeta(ctx, view, *dumpSpotMeta); err != nil {
			fatal(err)
		}
		return
	}

	wallets, err := discoverAddresses(cfg.Wallets.EnvPrefix)
	if err != nil {
		fatal(err)
	}
	wallets, err = config.SelectWallet(wallets, *walletID)
	if err != nil {
		fatal(err)
	}
	if len(wallets) == 0 {
		fatal(fmt.Errorf("no wallets found; set %s_ADDRESS_1, %s_ADDRESS_2, ...", cfg.Wallets.EnvPrefix, cfg.Wallets.EnvPrefix))
	}

	scanner := autoconfig.NewScanner(view, view.Meta(), account.New(restClient, cfg.Market.Dexes, log), log)
	failed := false
	for _, wallet := range wallets {
		path := fmt.Sprintf(cfg.Wallets.TargetsPattern, wallet.ID)
		if err := generate(ctx, scanner, wallet, path); err != nil {
			log.Error("targets generation failed", zap.Int("wallet", wallet.ID), zap.Error(err))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func generate(ctx context.Context, scanner *autoconfig.Scanner, wallet config.WalletCredentials, path string) error {
	targets, err := config.LoadTargets(path)
	if errors.Is(err, fs.ErrNotExist) {
		targets = autoconfig.NewTargets()
	} else if err != nil {
		return err
	}
	holdings, err := scanner.Scan(ctx, wallet.Address)
	if err != nil {
		return err
	}
	fmt.Printf("wallet %d (%s)\n", wallet.ID, wallet.Address)
	for _, h := range holdings {
		fmt.Printf("  %-6s %-16s qty=%-14.6f px=%-14.6f value=$%-10.2f quote=%s\n",
			h.Ref.Kind(), h.Identifier, h.Quantity, h.Price, h.ValueUSD, h.Quote)
	}
	res := autoconfig.Merge(targets, holdings)
	if err := config.SaveTargets(path, targets); err != nil {
		return err
	}
	fmt.Printf("  added %d, refreshed %d -> %s\n", len(res.Added), len(res.Updated), path)
	if len(res.Added) > 0 {
		fmt.Println("  new records are disabled; review hold_usd and set enabled: true")
	}
	return nil
}

// discoverAddresses enumerates wallet addresses only; generating targets does
// not need the private keys.
func discoverAddresses(prefix string) ([]config.WalletCredentials, error) {
	return config.DiscoverWallets(prefix, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		var id int
		if _, err := fmt.Sscanf(key, prefix+"_PRIVATE_KEY_%d", &id); err == nil {
			return "unused", true
		}
		return "", false
	})
}

func writeSpotMeta(ctx context.Context, view *market.View, path string) error {
	meta, err := view.Meta().SpotMeta(ctx)
	if err != nil {
		return err
	}
	tokens := autoconfig.TokensWithPairs(meta)
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return err
	}
	fmt.Printf("%d spot tokens written to %s\n", len(tokens), path)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
