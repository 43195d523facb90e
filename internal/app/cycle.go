package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"hl-rebalancer/internal/account"
	"hl-rebalancer/internal/alerts"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/exec"
	"hl-rebalancer/internal/market"
	"hl-rebalancer/internal/metrics"
	"hl-rebalancer/internal/state"
	"hl-rebalancer/internal/strategy"
	"hl-rebalancer/internal/timescale"

	"go.uber.org/zap"
)

// Outcome is what happened to one asset in a pass.
type Outcome string

const (
	OutcomeDisabled     Outcome = "disabled"
	OutcomeNoPrecision  Outcome = "no_precision"
	OutcomeNoPrice      Outcome = "no_price"
	OutcomeCooldown     Outcome = "cooldown"
	OutcomeHold         Outcome = "hold"
	OutcomeNoBalance    Outcome = "insufficient_balance"
	OutcomeBlockedLoss  Outcome = "blocked_negative_pnl"
	OutcomeOrdered      Outcome = "ordered"
	OutcomeOrderFailed  Outcome = "order_failed"
	OutcomeInvalidInput Outcome = "invalid"
)

type MarketView interface {
	Snapshot(ctx context.Context) (*market.Snapshot, error)
	Price(q market.PriceQuery) (float64, string, bool)
	Quote(ctx context.Context, ref market.AssetRef) string
}

type AssetResolver interface {
	AssetInfo(ctx context.Context, ref market.AssetRef) (market.AssetInfo, error)
}

type AccountSource interface {
	Snapshot(ctx context.Context, user string) (*account.Snapshot, error)
}

type Submitter interface {
	Submit(ctx context.Context, req exec.OrderRequest) exec.Result
	DryRun() bool
}

type Notifier interface {
	Notify(ctx context.Context, message string)
}

// AssetReport is the per-asset line of a cycle.
type AssetReport struct {
	Identifier   string
	Kind         market.Kind
	Quote        string
	Quantity     float64
	Price        float64
	PriceSource  string
	ValueUSD     float64
	TargetUSD    float64
	DeviationPct float64
	PnL          float64
	Decision     strategy.Action
	Outcome      Outcome
	Detail       string
}

type CycleDeps struct {
	View      MarketView
	Assets    AssetResolver
	Account   AccountSource
	Executor  Submitter
	Cooldown  *strategy.Cooldown
	Metrics   *metrics.Metrics
	Notifier  Notifier
	Store     state.Store
	Timescale *timescale.Writer
	Log       *zap.Logger
}

// Cycle runs rebalancing passes for one wallet. It is not safe for concurrent
// use; the scheduler runs wallets one after another.
type Cycle struct {
	wallet   config.WalletCredentials
	settings config.Settings
	targets  []config.Target
	deps     CycleDeps
	phases   *strategy.StateMachine
	log      *zap.Logger
	now      func() time.Time
	// degraded is the failed source set last alerted, joined with ",".
	degraded string
}

func NewCycle(wallet config.WalletCredentials, targets *config.Targets, deps CycleDeps) *Cycle {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Int("wallet", wallet.ID))
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Cooldown == nil {
		deps.Cooldown = strategy.NewCooldown(targets.Settings.Cooldown())
	}
	resolved, errs := targets.Assets()
	for _, err := range errs {
		log.Error("invalid target record", zap.Error(err))
	}
	return &Cycle{
		wallet:   wallet,
		settings: targets.Settings,
		targets:  resolved,
		deps:     deps,
		phases:   strategy.NewStateMachine(),
		log:      log,
		now:      time.Now,
	}
}

func (c *Cycle) WalletID() int           { return c.wallet.ID }
func (c *Cycle) Interval() time.Duration { return c.settings.CheckInterval() }

func (c *Cycle) Run(ctx context.Context) error {
	_, _, err := c.Pass(ctx)
	return err
}

// Pass refreshes market and account state and walks the spot then futures
// targets. Cancellation is checked between assets.
func (c *Cycle) Pass(ctx context.Context) (state.CycleReport, []AssetReport, error) {
	started := c.now()
	report := state.CycleReport{
		Wallet:      c.wallet.ID,
		Address:     c.wallet.Address,
		StartedAtMS: started.UnixMilli(),
		DryRun:      c.deps.Executor.DryRun(),
	}
	c.phases.Apply(strategy.EventWake)
	defer func() {
		c.deps.Metrics.CyclesRun.Inc()
		c.deps.Metrics.CycleDuration.Observe(c.now().Sub(started).Seconds())
	}()

	mkt, err := c.deps.View.Snapshot(ctx)
	if err != nil {
		c.phases.Apply(strategy.EventAbort)
		report.Aborted = true
		return c.finish(ctx, report), nil, fmt.Errorf("market snapshot: %w", err)
	}
	acct, err := c.deps.Account.Snapshot(ctx, c.wallet.Address)
	if err != nil {
		c.phases.Apply(strategy.EventAbort)
		report.Aborted = true
		return c.finish(ctx, report), nil, fmt.Errorf("account snapshot: %w", err)
	}
	report.FailedSources = append(mkt.Failed(), acct.Failed()...)
	for _, src := range report.FailedSources {
		c.deps.Metrics.SourceFailures.Inc(src)
	}
	c.alertDegraded(ctx, report.FailedSources)
	c.phases.Apply(strategy.EventRefreshed)
	c.log.Info("cycle refreshed",
		zap.Float64("usdc", acct.Balance("USDC")),
		zap.Float64("usdh", acct.Balance("USDH")),
		zap.Float64("usde", acct.Balance("USDE")),
		zap.Float64("usdt", acct.Balance("USDT")),
		zap.Float64("withdrawable", acct.Withdrawable()),
		zap.Int("positions", len(acct.Positions())),
		zap.Time("market_at", mkt.At()),
		zap.Strings("failed_sources", report.FailedSources),
	)

	var lines []AssetReport
	for _, kind := range []market.Kind{market.KindSpot, market.KindPerp} {
		for _, target := range c.targets {
			if target.Ref.Kind() != kind {
				continue
			}
			if err := ctx.Err(); err != nil {
				c.phases.Apply(strategy.EventAbort)
				report.Aborted = true
				return c.finish(ctx, report), lines, err
			}
			line := c.evaluate(ctx, target, mkt, acct)
			c.tally(&report, line)
			c.record(line)
			lines = append(lines, line)
		}
		if kind == market.KindSpot {
			c.phases.Apply(strategy.EventSpotDone)
		} else {
			c.phases.Apply(strategy.EventPerpDone)
		}
	}
	return c.finish(ctx, report), lines, nil
}

func (c *Cycle) evaluate(ctx context.Context, target config.Target, mkt *market.Snapshot, acct *account.Snapshot) AssetReport {
	line := AssetReport{
		Identifier: target.Identifier,
		Kind:       target.Ref.Kind(),
		TargetUSD:  target.TargetUSD,
		Decision:   strategy.ActionHold,
	}
	if !target.Tradable() {
		return c.skip(line, OutcomeDisabled, "")
	}
	// ref is where the asset actually trades. A perp found in another
	// namespace is priced, quoted and ordered there.
	ref, identifier := target.Ref, target.Identifier
	var position *market.PositionPrice
	switch ref.Kind() {
	case market.KindSpot:
		line.Quantity = acct.Balance(spotToken(ref, mkt))
	case market.KindPerp:
		if pos, ok := acct.Lookup(ref.Namespace(), target.Identifier); ok {
			line.Quantity = pos.Size
			line.PnL = pos.UnrealizedPnL
			position = pos.PriceInfo()
			if pos.Namespace != ref.Namespace() {
				ref = market.PerpRef(pos.Namespace, pos.Asset)
				identifier = ref.Coin()
				c.log.Info("position matched in another market",
					zap.String("asset", target.Identifier),
					zap.String("coin", identifier),
				)
			}
		}
	}
	prec, ok := c.precision(ctx, target, ref)
	if !ok {
		return c.skip(line, OutcomeNoPrecision, "size decimals unknown, run autoconfig")
	}

	price, source, ok := c.deps.View.Price(market.PriceQuery{
		Identifier: identifier,
		Ref:        ref,
		Snapshot:   mkt,
		Position:   position,
	})
	if !ok {
		return c.skip(line, OutcomeNoPrice, "no usable price from any source")
	}
	line.Price, line.PriceSource = price, source
	line.ValueUSD = math.Abs(line.Quantity) * price
	line.DeviationPct = strategy.Deviation(line.ValueUSD, target.TargetUSD)
	c.deps.Metrics.Deviation.Set(target.Identifier, line.DeviationPct)

	if !c.deps.Cooldown.CanTrade(target.Identifier) {
		remaining := c.deps.Cooldown.Remaining(target.Identifier)
		return c.skip(line, OutcomeCooldown, fmt.Sprintf("%.1fmin remaining", remaining.Minutes()))
	}

	line.Decision = strategy.Decide(strategy.DecisionInput{
		CurrentUSD:       line.ValueUSD,
		TargetUSD:        target.TargetUSD,
		BuyThresholdPct:  target.BuyThresholdPct,
		SellThresholdPct: target.SellThresholdPct,
		BuyEnabled:       target.BuyEnabled,
		SellEnabled:      target.SellEnabled,
	})
	if line.Decision == strategy.ActionHold {
		line.Outcome = OutcomeHold
		c.log.Info("asset within band",
			zap.String("asset", target.Identifier),
			zap.Float64("value_usd", line.ValueUSD),
			zap.Float64("target_usd", target.TargetUSD),
			zap.Float64("deviation_pct", line.DeviationPct),
			zap.String("price_source", source),
		)
		return line
	}

	orderUSD := c.settings.OrderSizeUSD
	if ref == target.Ref {
		line.Quote = target.QuoteAsset
	}
	if line.Quote == "" {
		line.Quote = c.deps.View.Quote(ctx, ref)
	}
	if line.Decision.IsBuy() {
		if bal := acct.Balance(line.Quote); bal < orderUSD {
			return c.skip(line, OutcomeNoBalance, fmt.Sprintf("%s %.2f < %.2f", line.Quote, bal, orderUSD))
		}
	} else if ref.IsPerp() && line.PnL < 0 {
		c.deps.Metrics.SellsBlocked.Inc()
		return c.skip(line, OutcomeBlockedLoss, fmt.Sprintf("unrealized pnl %.2f", line.PnL))
	}

	res := c.deps.Executor.Submit(ctx, exec.OrderRequest{
		Ref:            ref,
		IsBuy:          line.Decision.IsBuy(),
		Size:           orderUSD / price,
		ReferencePrice: price,
		Precision:      prec,
		HasPrecision:   true,
	})
	c.notifyOrder(ctx, target, line, res)
	c.recordOrder(target, line, res, price)
	line.Detail = res.Message
	if !res.Success {
		c.deps.Metrics.OrdersFailed.Inc()
		line.Outcome = OutcomeOrderFailed
		c.log.Error("rebalance order failed",
			zap.String("asset", target.Identifier),
			zap.String("side", string(line.Decision)),
			zap.String("message", res.Message),
		)
		return line
	}
	c.deps.Metrics.OrdersPlaced.Inc()
	c.deps.Cooldown.Record(target.Identifier)
	line.Outcome = OutcomeOrdered
	c.log.Info("rebalance order submitted",
		zap.String("asset", target.Identifier),
		zap.String("side", string(line.Decision)),
		zap.String("size", res.Size.String()),
		zap.String("price", res.Price.String()),
		zap.String("quote", line.Quote),
		zap.Float64("fee_pct", target.FeePct),
		zap.Float64("est_fee_usd", orderUSD*target.FeePct/100),
		zap.Bool("dry_run", res.DryRun),
		zap.String("message", res.Message),
	)
	return line
}

// precision prefers exchange metadata and falls back to configured decimals.
func (c *Cycle) precision(ctx context.Context, target config.Target, ref market.AssetRef) (exec.Precision, bool) {
	if c.deps.Assets != nil {
		if info, err := c.deps.Assets.AssetInfo(ctx, ref); err == nil {
			return exec.Precision{SzDecimals: info.SzDecimals, PxDecimals: info.PxDecimals, HasTick: true}, true
		}
	}
	if !target.HasSzDecimals {
		return exec.Precision{}, false
	}
	return exec.Precision{
		SzDecimals: target.SzDecimals,
		PxDecimals: target.PriceDecimals,
		HasTick:    target.HasPxDecimals,
	}, true
}

func (c *Cycle) skip(line AssetReport, outcome Outcome, detail string) AssetReport {
	line.Outcome = outcome
	line.Detail = detail
	if outcome != OutcomeDisabled {
		c.deps.Metrics.AssetsSkipped.Inc(string(outcome))
		c.log.Info("asset skipped",
			zap.String("asset", line.Identifier),
			zap.String("reason", string(outcome)),
			zap.String("detail", detail),
		)
	}
	return line
}

func (c *Cycle) tally(report *state.CycleReport, line AssetReport) {
	if line.Outcome == OutcomeDisabled {
		return
	}
	report.Assets++
	switch line.Outcome {
	case OutcomeOrdered:
		report.Orders++
	case OutcomeOrderFailed:
		report.Failures++
	case OutcomeBlockedLoss:
		report.Blocked++
	case OutcomeHold:
		report.Holds++
	default:
		report.Skipped++
	}
}

// alertDegraded notifies only when the set of failed sources changes.
func (c *Cycle) alertDegraded(ctx context.Context, failed []string) {
	key := strings.Join(failed, ",")
	if key == c.degraded {
		return
	}
	prev := c.degraded
	c.degraded = key
	if c.deps.Notifier == nil {
		return
	}
	if key == "" {
		if prev != "" {
			c.deps.Notifier.Notify(ctx, alerts.FormatRecovered(c.wallet.ID))
		}
		return
	}
	c.deps.Notifier.Notify(ctx, alerts.FormatDegraded(c.wallet.ID, failed))
}

// notifyOrder alerts on live order results; simulated orders are only logged.
func (c *Cycle) notifyOrder(ctx context.Context, target config.Target, line AssetReport, res exec.Result) {
	if c.deps.Notifier == nil || res.DryRun {
		return
	}
	c.deps.Notifier.Notify(ctx, alerts.FormatOrder(alerts.OrderAlert{
		Wallet:  c.wallet.ID,
		Asset:   target.Identifier,
		Side:    string(line.Decision),
		Size:    res.Size.String(),
		Price:   res.Price.String(),
		Success: res.Success,
		Message: res.Message,
	}))
}

func (c *Cycle) finish(ctx context.Context, report state.CycleReport) state.CycleReport {
	report.FinishedAtMS = c.now().UnixMilli()
	if c.deps.Store != nil {
		// The report is written even when ctx is done.
		if err := state.SaveCycleReport(context.WithoutCancel(ctx), c.deps.Store, report); err != nil {
			c.log.Warn("cycle report persist failed", zap.Error(err))
		}
	}
	c.log.Info("cycle finished",
		zap.Int("assets", report.Assets),
		zap.Int("orders", report.Orders),
		zap.Int("failures", report.Failures),
		zap.Int("skipped", report.Skipped),
		zap.Int("blocked", report.Blocked),
		zap.Int("holds", report.Holds),
		zap.Bool("aborted", report.Aborted),
		zap.Bool("dry_run", report.DryRun),
	)
	return report
}

// spotToken is the balance key for a spot target: the configured token name,
// else the pair's base token.
func spotToken(ref market.AssetRef, mkt *market.Snapshot) string {
	if sym := strings.TrimSpace(ref.Symbol()); sym != "" {
		return sym
	}
	if pair, ok := mkt.SpotPair(ref.PairIndex()); ok {
		return pair.Base
	}
	return ""
}
