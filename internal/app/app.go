package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hl-rebalancer/internal/account"
	"hl-rebalancer/internal/alerts"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/exec"
	"hl-rebalancer/internal/hl/exchange"
	"hl-rebalancer/internal/hl/rest"
	"hl-rebalancer/internal/hl/ws"
	"hl-rebalancer/internal/market"
	"hl-rebalancer/internal/metrics"
	"hl-rebalancer/internal/state/sqlite"
	"hl-rebalancer/internal/timescale"

	"go.uber.org/zap"
)

type Options struct {
	// WalletID restricts the run to one wallet; 0 runs every discovered wallet.
	WalletID int
	// DryRun forces simulation for every wallet regardless of its settings.
	DryRun bool
	Lookup config.LookupFunc
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	rest      *rest.Client
	ws        *ws.Client
	view      *market.View
	account   *account.Account
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	alerts    *alerts.Telegram
	timescale *timescale.Writer
	exchanges []*exchange.Client
	cycles    []*Cycle
}

func New(cfg *config.Config, opts Options, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	var wsClient *ws.Client
	if cfg.WS.Enabled {
		wsClient = ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	}
	maxMidAge := cfg.WS.MaxMidAge
	if wsClient == nil {
		maxMidAge = 0
	}
	view := market.NewView(restClient, wsClient, market.ViewOptions{
		Dexes:         cfg.Market.Dexes,
		MetaTTL:       cfg.Market.MetaTTL,
		QuoteCacheTTL: cfg.Market.QuoteCacheTTL,
		MaxMidAge:     maxMidAge,
	}, log)

	a := &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		rest:    restClient,
		ws:      wsClient,
		view:    view,
		account: account.New(restClient, cfg.Market.Dexes, log),
		metrics: metrics.NewNoop(),
		alerts:  alerts.NewTelegram(cfg.Telegram, log),
	}
	if cfg.Metrics.Enabled {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	a.timescale, err = timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	wallets, err := config.DiscoverWallets(cfg.Wallets.EnvPrefix, opts.Lookup)
	if err != nil {
		a.close()
		return nil, err
	}
	wallets, err = config.SelectWallet(wallets, opts.WalletID)
	if err != nil {
		a.close()
		return nil, err
	}
	for _, wallet := range wallets {
		cycle, client, err := a.buildCycle(wallet, opts.DryRun)
		if err != nil {
			log.Error("wallet initialization failed", zap.Int("wallet", wallet.ID), zap.Error(err))
			continue
		}
		a.cycles = append(a.cycles, cycle)
		if client != nil {
			a.exchanges = append(a.exchanges, client)
		}
	}
	if len(a.cycles) == 0 {
		a.close()
		return nil, errors.New("no wallet could be initialized; check HL_ADDRESS_N, HL_PRIVATE_KEY_N and the targets files")
	}
	return a, nil
}

func (a *App) buildCycle(wallet config.WalletCredentials, forceDryRun bool) (*Cycle, *exchange.Client, error) {
	path := fmt.Sprintf(a.cfg.Wallets.TargetsPattern, wallet.ID)
	targets, err := config.LoadTargets(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load targets %s (run autoconfig first): %w", path, err)
	}
	signer, err := exchange.NewSigner(wallet.PrivateKey, a.cfg.IsMainnet())
	if err != nil {
		return nil, nil, err
	}
	if !strings.EqualFold(wallet.Address, signer.Address().Hex()) {
		a.log.Info("signing with agent key",
			zap.Int("wallet", wallet.ID),
			zap.String("account", wallet.Address),
			zap.String("agent", signer.Address().Hex()),
		)
	}
	client, err := exchange.NewClient(a.cfg.REST.BaseURL, a.cfg.REST.Timeout, signer, "")
	if err != nil {
		return nil, nil, err
	}
	client.SetLogger(a.log)

	dryRun := forceDryRun || targets.Settings.DryRun
	var placer exec.OrderPlacer = client
	if dryRun {
		placer = nil
	}
	executor := exec.New(placer, a.view.Meta(), dryRun, a.log.With(zap.Int("wallet", wallet.ID)))
	cycle := NewCycle(wallet, targets, CycleDeps{
		View:      a.view,
		Assets:    a.view.Meta(),
		Account:   a.account,
		Executor:  executor,
		Metrics:   a.metrics,
		Notifier:  a.alerts,
		Store:     a.store,
		Timescale: a.timescale,
		Log:       a.log,
	})
	a.log.Info("wallet ready",
		zap.Int("wallet", wallet.ID),
		zap.String("targets", path),
		zap.Bool("dry_run", dryRun),
		zap.Duration("cooldown", targets.Settings.Cooldown()),
		zap.Duration("interval", targets.Settings.CheckInterval()),
	)
	if dryRun {
		return cycle, nil, nil
	}
	return cycle, client, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()
	for _, client := range a.exchanges {
		if err := client.InitNonceStore(ctx, a.store); err != nil {
			a.log.Warn("nonce store init failed", zap.String("address", client.Address()), zap.Error(err))
		} else if st, ok := client.NonceState(); ok {
			a.log.Info("nonce persistence enabled", zap.String("nonce_key", st.Key), zap.Uint64("nonce_seed", st.Last))
		}
	}
	if err := a.view.Start(ctx); err != nil {
		a.log.Warn("mid stream unavailable, using REST mids", zap.Error(err))
	}
	a.timescale.Start(ctx)
	if a.prom != nil {
		go a.serveMetrics(ctx)
	}

	runners := make([]Runner, 0, len(a.cycles))
	for _, c := range a.cycles {
		runners = append(runners, c)
	}
	return NewScheduler(runners, a.log).Run(ctx)
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("metrics server failed", zap.Error(err))
	}
}

func (a *App) close() {
	if a.ws != nil {
		_ = a.ws.Close()
	}
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
