package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"hl-rebalancer/internal/account"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/exec"
	"hl-rebalancer/internal/market"
	"hl-rebalancer/internal/state"
	"hl-rebalancer/internal/strategy"

	"go.uber.org/zap"
)

type fakeView struct {
	snap  *market.Snapshot
	err   error
	quote string
}

func (f *fakeView) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeView) Price(q market.PriceQuery) (float64, string, bool) {
	return market.DefaultPriceChain().Resolve(q)
}

func (f *fakeView) Quote(ctx context.Context, ref market.AssetRef) string {
	if f.quote != "" {
		return f.quote
	}
	return market.PrimaryStable
}

type fakeAssets map[string]market.AssetInfo

func (f fakeAssets) AssetInfo(ctx context.Context, ref market.AssetRef) (market.AssetInfo, error) {
	info, ok := f[ref.Coin()]
	if !ok {
		return market.AssetInfo{}, errors.New("unknown asset")
	}
	return info, nil
}

type fakeAccount struct {
	snap *account.Snapshot
	err  error
}

func (f *fakeAccount) Snapshot(ctx context.Context, user string) (*account.Snapshot, error) {
	return f.snap, f.err
}

type recordingSubmitter struct {
	requests []exec.OrderRequest
	fail     bool
	live     bool
	onSubmit func()
}

func (s *recordingSubmitter) Submit(ctx context.Context, req exec.OrderRequest) exec.Result {
	s.requests = append(s.requests, req)
	if s.onSubmit != nil {
		s.onSubmit()
	}
	if s.fail {
		return exec.Result{DryRun: !s.live, Message: "Order could not immediately match against any resting orders."}
	}
	if s.live {
		return exec.Result{Success: true, Message: "filled"}
	}
	return exec.Result{Success: true, DryRun: true, Message: "dry run"}
}

func (s *recordingSubmitter) DryRun() bool { return !s.live }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

var testWallet = config.WalletCredentials{ID: 1, Address: "0xabc"}

func testSpotMeta() *market.SpotMeta {
	return &market.SpotMeta{
		Pairs: map[int]market.SpotPair{
			107: {Index: 107, Name: "@107", BaseToken: 150, QuoteToken: 0, Base: "HYPE", Quote: "USDC", BaseSzDecimals: 2},
			142: {Index: 142, Name: "@142", BaseToken: 197, QuoteToken: 0, Base: "UBTC", Quote: "USDC", BaseSzDecimals: 5},
		},
	}
}

func testSettings() config.Settings {
	return config.Settings{OrderSizeUSD: 11, CooldownMinutes: 15, CheckIntervalSeconds: 60, DefaultFeePct: 0.07}
}

func hypeTarget() *config.AssetTarget {
	return &config.AssetTarget{
		Enabled:          true,
		BuyEnabled:       boolPtr(true),
		SellEnabled:      boolPtr(true),
		HoldUSD:          100,
		BuyThresholdPct:  floatPtr(16),
		SellThresholdPct: floatPtr(16),
		PairIndex:        intPtr(107),
	}
}

func newTestCycle(targets *config.Targets, deps CycleDeps) *Cycle {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	c := NewCycle(testWallet, targets, deps)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	return c
}

func findLine(t *testing.T, lines []AssetReport, id string) AssetReport {
	t.Helper()
	for _, line := range lines {
		if line.Identifier == id {
			return line
		}
	}
	t.Fatalf("no report line for %s in %+v", id, lines)
	return AssetReport{}
}

func TestPassSpotBuyUsesPairMidAndTokenBalance(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20, "HYPE": 99}, nil, testSpotMeta())
	submitter := &recordingSubmitter{}
	notifier := &recordingNotifier{}
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": hypeTarget()},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"HYPE": 1, "USDC": 50}, nil)},
		Executor: submitter,
		Notifier: notifier,
	})

	report, lines, err := cycle.Pass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := findLine(t, lines, "HYPE")
	if line.Outcome != OutcomeOrdered || line.Decision != strategy.ActionBuy {
		t.Fatalf("expected ordered buy, got %+v", line)
	}
	if line.Price != 20 || line.PriceSource != market.SourceMid || line.ValueUSD != 20 {
		t.Fatalf("expected @107 mid valuation, got %+v", line)
	}
	if math.Abs(line.DeviationPct+80) > 1e-9 {
		t.Fatalf("expected -80%% deviation, got %f", line.DeviationPct)
	}
	if len(submitter.requests) != 1 {
		t.Fatalf("expected one order, got %d", len(submitter.requests))
	}
	req := submitter.requests[0]
	if !req.IsBuy || math.Abs(req.Size-0.55) > 1e-9 || req.ReferencePrice != 20 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Precision != (exec.Precision{SzDecimals: 2, PxDecimals: 6, HasTick: true}) {
		t.Fatalf("expected meta precision, got %+v", req.Precision)
	}
	if report.Orders != 1 || report.Assets != 1 || !report.DryRun {
		t.Fatalf("unexpected report %+v", report)
	}
	if cycle.deps.Cooldown.CanTrade("HYPE") {
		t.Fatalf("expected cooldown recorded after success")
	}
	if cycle.phases.Current() != strategy.StateIdle {
		t.Fatalf("expected IDLE after pass, got %s", cycle.phases.Current())
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("expected no alert for a simulated order, got %v", notifier.messages)
	}
}

func TestPassAlertsLiveOrders(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20}, nil, testSpotMeta())
	notifier := &recordingNotifier{}
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": hypeTarget()},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"HYPE": 1, "USDC": 50}, nil)},
		Executor: &recordingSubmitter{live: true},
		Notifier: notifier,
	})
	if _, _, err := cycle.Pass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "BUY") || !strings.Contains(notifier.messages[0], "HYPE") {
		t.Fatalf("expected order alert, got %v", notifier.messages)
	}
}

func TestDegradedAlertOnlyOnChange(t *testing.T) {
	notifier := &recordingNotifier{}
	cycle := newTestCycle(&config.Targets{Settings: testSettings()}, CycleDeps{
		Executor: &recordingSubmitter{},
		Notifier: notifier,
	})
	ctx := context.Background()
	cycle.alertDegraded(ctx, nil)
	cycle.alertDegraded(ctx, []string{"spotMeta"})
	cycle.alertDegraded(ctx, []string{"spotMeta"})
	cycle.alertDegraded(ctx, []string{"spotMeta", "positions:xyz"})
	cycle.alertDegraded(ctx, nil)
	cycle.alertDegraded(ctx, nil)
	if len(notifier.messages) != 3 {
		t.Fatalf("expected 3 alerts, got %v", notifier.messages)
	}
	if !strings.Contains(notifier.messages[1], "positions:xyz") || !strings.Contains(notifier.messages[2], "available again") {
		t.Fatalf("unexpected alerts %v", notifier.messages)
	}
}

func TestPassSpotBuyNeedsQuoteBalance(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20}, nil, testSpotMeta())
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": hypeTarget()},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"HYPE": 1, "USDC": 5}, nil)},
		Executor: submitter,
	})

	report, lines, err := cycle.Pass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line := findLine(t, lines, "HYPE"); line.Outcome != OutcomeNoBalance || line.Quote != "USDC" {
		t.Fatalf("expected insufficient USDC, got %+v", line)
	}
	if len(submitter.requests) != 0 || report.Skipped != 1 {
		t.Fatalf("expected no order and one skip, got %d orders report %+v", len(submitter.requests), report)
	}
	if !cycle.deps.Cooldown.CanTrade("HYPE") {
		t.Fatalf("skip must not start a cooldown")
	}
}

func TestPassConfiguredQuoteAssetWins(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20}, nil, testSpotMeta())
	target := hypeTarget()
	target.QuoteAsset = "USDH"
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": target},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"USDH": 30}, nil)},
		Executor: submitter,
	})
	_, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "HYPE"); line.Outcome != OutcomeOrdered || line.Quote != "USDH" {
		t.Fatalf("expected USDH funded buy, got %+v", line)
	}
}

func TestPassBlocksPerpSellWithNegativePnL(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"BTC": 20000}, nil, nil)
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"BTC": {
			Enabled: true, HoldUSD: 100, SellThresholdPct: floatPtr(16),
		}},
	}, CycleDeps{
		View:   &fakeView{snap: snap},
		Assets: fakeAssets{"BTC": {ID: 0, SzDecimals: 5, PxDecimals: 1}},
		Account: &fakeAccount{snap: account.NewSnapshot("0xabc", nil, []account.Position{
			{Asset: "BTC", Coin: "BTC", Size: 0.01, EntryPrice: 21000, UnrealizedPnL: -10, HasPnL: true},
		})},
		Executor: submitter,
	})

	report, lines, err := cycle.Pass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := findLine(t, lines, "BTC")
	if line.Decision != strategy.ActionSell || line.Outcome != OutcomeBlockedLoss {
		t.Fatalf("expected blocked sell, got %+v", line)
	}
	if len(submitter.requests) != 0 || report.Blocked != 1 {
		t.Fatalf("expected no order, got %d report %+v", len(submitter.requests), report)
	}
}

func TestPassBlocksShortPerpSellWithNegativePnL(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"ETH": 2000}, nil, nil)
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"ETH": {
			Enabled: true, HoldUSD: 100, SellThresholdPct: floatPtr(16),
		}},
	}, CycleDeps{
		View:   &fakeView{snap: snap},
		Assets: fakeAssets{"ETH": {ID: 1, SzDecimals: 4, PxDecimals: 2}},
		Account: &fakeAccount{snap: account.NewSnapshot("0xabc", nil, []account.Position{
			{Asset: "ETH", Coin: "ETH", Size: -0.1, EntryPrice: 1950, UnrealizedPnL: -5, HasPnL: true},
		})},
		Executor: submitter,
	})

	report, lines, err := cycle.Pass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := findLine(t, lines, "ETH")
	if line.ValueUSD != 200 || line.Decision != strategy.ActionSell || line.Outcome != OutcomeBlockedLoss {
		t.Fatalf("expected blocked sell of short valued at 200, got %+v", line)
	}
	if len(submitter.requests) != 0 || report.Blocked != 1 {
		t.Fatalf("expected no order, got %d report %+v", len(submitter.requests), report)
	}
}

func TestPassOrdersPerpInMatchedNamespace(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"TSLA": 400, "xyz:TSLA": 250}, nil, nil)
	submitter := &recordingSubmitter{}
	view := &fakeView{snap: snap, quote: "USDC"}
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"TSLA": {
			Enabled: true, HoldUSD: 100, SellThresholdPct: floatPtr(16), QuoteAsset: "USDH",
		}},
	}, CycleDeps{
		View:   view,
		Assets: fakeAssets{"xyz:TSLA": {ID: 110000, SzDecimals: 3, PxDecimals: 2}},
		Account: &fakeAccount{snap: account.NewSnapshot("0xabc", nil, []account.Position{
			{Namespace: "xyz", Asset: "TSLA", Coin: "xyz:TSLA", Size: 1, EntryPrice: 200, MarkPrice: 250, HasMark: true, UnrealizedPnL: 50, HasPnL: true},
		})},
		Executor: submitter,
	})

	_, lines, err := cycle.Pass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := findLine(t, lines, "TSLA")
	if line.Outcome != OutcomeOrdered || line.Price != 250 || line.ValueUSD != 250 || line.Quote != "USDC" {
		t.Fatalf("expected sell valued in xyz, got %+v", line)
	}
	if len(submitter.requests) != 1 {
		t.Fatalf("expected one order, got %d", len(submitter.requests))
	}
	req := submitter.requests[0]
	if req.Ref.Coin() != "xyz:TSLA" || req.Ref.Namespace() != "xyz" || req.IsBuy {
		t.Fatalf("expected xyz:TSLA sell, got %s buy=%v", req.Ref.Coin(), req.IsBuy)
	}
	if req.Precision != (exec.Precision{SzDecimals: 3, PxDecimals: 2, HasTick: true}) {
		t.Fatalf("expected xyz precision, got %+v", req.Precision)
	}
	if cycle.deps.Cooldown.CanTrade("TSLA") {
		t.Fatalf("expected cooldown keyed by configured identifier")
	}
}

func TestPassSellsProfitablePerp(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"BTC": 20000}, nil, nil)
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"BTC": {
			Enabled: true, HoldUSD: 100, SellThresholdPct: floatPtr(16),
		}},
	}, CycleDeps{
		View:   &fakeView{snap: snap},
		Assets: fakeAssets{"BTC": {ID: 0, SzDecimals: 5, PxDecimals: 1}},
		Account: &fakeAccount{snap: account.NewSnapshot("0xabc", nil, []account.Position{
			{Asset: "BTC", Coin: "BTC", Size: 0.01, EntryPrice: 19000, UnrealizedPnL: 10, HasPnL: true},
		})},
		Executor: submitter,
	})
	_, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "BTC"); line.Outcome != OutcomeOrdered || line.ValueUSD != 200 {
		t.Fatalf("expected ordered sell at value 200, got %+v", line)
	}
	if len(submitter.requests) != 1 || submitter.requests[0].IsBuy {
		t.Fatalf("expected one sell request, got %+v", submitter.requests)
	}
}

func TestPassCooldownAfterSuccessOnly(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20}, nil, testSpotMeta())
	newCycle := func(submitter *recordingSubmitter) *Cycle {
		return newTestCycle(&config.Targets{
			Settings:   testSettings(),
			SpotTokens: map[string]*config.AssetTarget{"HYPE": hypeTarget()},
		}, CycleDeps{
			View:     &fakeView{snap: snap},
			Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}},
			Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"USDC": 100}, nil)},
			Executor: submitter,
		})
	}

	ok := &recordingSubmitter{}
	cycle := newCycle(ok)
	if _, _, err := cycle.Pass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "HYPE"); line.Outcome != OutcomeCooldown {
		t.Fatalf("expected cooldown on second pass, got %+v", line)
	}
	if len(ok.requests) != 1 {
		t.Fatalf("expected a single order across both passes, got %d", len(ok.requests))
	}

	failing := &recordingSubmitter{fail: true}
	cycle = newCycle(failing)
	report, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "HYPE"); line.Outcome != OutcomeOrderFailed || report.Failures != 1 {
		t.Fatalf("expected failed order, got %+v report %+v", line, report)
	}
	cycle.Pass(context.Background())
	if len(failing.requests) != 2 {
		t.Fatalf("expected retry after failure, got %d requests", len(failing.requests))
	}
}

func TestPassSkipsAssetWithoutPrice(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{}, nil, nil)
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"ETH": {Enabled: true, HoldUSD: 100, BuyEnabled: boolPtr(true)}},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"ETH": {ID: 1, SzDecimals: 4, PxDecimals: 2}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"USDC": 100}, nil)},
		Executor: submitter,
	})
	report, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "ETH"); line.Outcome != OutcomeNoPrice {
		t.Fatalf("expected no_price, got %+v", line)
	}
	if report.Skipped != 1 || len(submitter.requests) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestPassUsesPnLDerivedPrice(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{}, nil, nil)
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		Perpetuals: map[string]*config.AssetTarget{"xyz:TSLA": {Enabled: true, HoldUSD: 100}},
	}, CycleDeps{
		View:   &fakeView{snap: snap},
		Assets: fakeAssets{"xyz:TSLA": {ID: 110000, SzDecimals: 3, PxDecimals: 3}},
		Account: &fakeAccount{snap: account.NewSnapshot("0xabc", nil, []account.Position{
			{Namespace: "xyz", Asset: "TSLA", Coin: "xyz:TSLA", Size: 1, EntryPrice: 50, UnrealizedPnL: 5, HasPnL: true},
		})},
		Executor: &recordingSubmitter{},
	})
	_, lines, _ := cycle.Pass(context.Background())
	line := findLine(t, lines, "xyz:TSLA")
	if line.PriceSource != market.SourcePnLDerived || math.Abs(line.Price-55) > 1e-9 {
		t.Fatalf("expected pnl derived 55, got %+v", line)
	}
	if math.Abs(line.ValueUSD-55) > 1e-9 || line.Outcome != OutcomeHold {
		t.Fatalf("expected hold at $55, got %+v", line)
	}
}

func TestPassPrecisionFallback(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"DOGE": 0.1, "PEPE": 0.00001}, nil, nil)
	submitter := &recordingSubmitter{}
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		Perpetuals: map[string]*config.AssetTarget{
			"DOGE": {Enabled: true, HoldUSD: 100, BuyEnabled: boolPtr(true), SzDecimals: intPtr(0)},
			"PEPE": {Enabled: true, HoldUSD: 100, BuyEnabled: boolPtr(true)},
		},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"USDC": 100}, nil)},
		Executor: submitter,
	})
	_, lines, _ := cycle.Pass(context.Background())
	if line := findLine(t, lines, "PEPE"); line.Outcome != OutcomeNoPrecision {
		t.Fatalf("expected no_precision, got %+v", line)
	}
	if line := findLine(t, lines, "DOGE"); line.Outcome != OutcomeOrdered {
		t.Fatalf("expected configured precision to allow order, got %+v", line)
	}
	if len(submitter.requests) != 1 || submitter.requests[0].Precision != (exec.Precision{}) {
		t.Fatalf("expected configured zero decimals without tick, got %+v", submitter.requests)
	}
}

func TestPassDisabledTargetsAreIgnored(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20}, nil, testSpotMeta())
	target := hypeTarget()
	target.Enabled = false
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": target},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", nil, nil)},
		Executor: &recordingSubmitter{},
	})
	report, lines, _ := cycle.Pass(context.Background())
	if report.Assets != 0 || findLine(t, lines, "HYPE").Outcome != OutcomeDisabled {
		t.Fatalf("expected disabled target to be ignored, got %+v", report)
	}
}

func TestPassStopsBetweenAssetsOnCancel(t *testing.T) {
	snap := market.NewSnapshot(time.Now(), map[string]float64{"@107": 20, "@142": 60000}, nil, testSpotMeta())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	submitter := &recordingSubmitter{onSubmit: cancel}
	store := newMemoryStore()
	ubtc := hypeTarget()
	ubtc.PairIndex = intPtr(142)
	cycle := newTestCycle(&config.Targets{
		Settings:   testSettings(),
		SpotTokens: map[string]*config.AssetTarget{"HYPE": hypeTarget(), "UBTC": ubtc},
	}, CycleDeps{
		View:     &fakeView{snap: snap},
		Assets:   fakeAssets{"@107": {ID: 10107, SzDecimals: 2, PxDecimals: 6}, "@142": {ID: 10142, SzDecimals: 5, PxDecimals: 3}},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", map[string]float64{"USDC": 100}, nil)},
		Executor: submitter,
		Store:    store,
	})

	report, lines, err := cycle.Pass(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(lines) != 1 || len(submitter.requests) != 1 || !report.Aborted {
		t.Fatalf("expected stop after first asset, got lines %+v report %+v", lines, report)
	}
	if cycle.phases.Current() != strategy.StateIdle {
		t.Fatalf("expected IDLE after abort, got %s", cycle.phases.Current())
	}
	saved, ok, err := state.LoadCycleReport(context.Background(), store, testWallet.ID)
	if err != nil || !ok || !saved.Aborted || saved.Orders != 1 {
		t.Fatalf("expected aborted report persisted, got %+v ok=%v err=%v", saved, ok, err)
	}
}

func TestPassAbortsWhenMarketUnavailable(t *testing.T) {
	cycle := newTestCycle(&config.Targets{Settings: testSettings()}, CycleDeps{
		View:     &fakeView{err: errors.New("connection refused")},
		Account:  &fakeAccount{snap: account.NewSnapshot("0xabc", nil, nil)},
		Executor: &recordingSubmitter{},
	})
	report, _, err := cycle.Pass(context.Background())
	if err == nil || !report.Aborted {
		t.Fatalf("expected aborted pass, got err=%v report=%+v", err, report)
	}
	if cycle.phases.Current() != strategy.StateIdle {
		t.Fatalf("expected IDLE after abort, got %s", cycle.phases.Current())
	}
}

func TestNewCycleIsolatesInvalidTargets(t *testing.T) {
	cycle := newTestCycle(&config.Targets{
		Settings: testSettings(),
		SpotTokens: map[string]*config.AssetTarget{
			"HYPE":   hypeTarget(),
			"BROKEN": {Enabled: true, HoldUSD: 10},
		},
	}, CycleDeps{Executor: &recordingSubmitter{}})
	if len(cycle.targets) != 1 || cycle.targets[0].Identifier != "HYPE" {
		t.Fatalf("expected only valid target kept, got %+v", cycle.targets)
	}
	if cycle.Interval() != time.Minute || cycle.WalletID() != 1 {
		t.Fatalf("unexpected interval %v wallet %d", cycle.Interval(), cycle.WalletID())
	}
}
