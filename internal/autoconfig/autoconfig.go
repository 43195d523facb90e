package autoconfig

import (
	"context"
	"fmt"
	"math"
	"sort"

	"hl-rebalancer/internal/account"
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/market"

	"go.uber.org/zap"
)

const (
	minHoldUSD          = 100
	newThresholdPct     = 16
	newOrderSizeUSD     = 15
	newCooldownMinutes  = 15
	newCheckIntervalSec = 100
	newFeePct           = 0.07
	dustSize            = 1e-8
)

type MarketSource interface {
	Snapshot(ctx context.Context) (*market.Snapshot, error)
	Quote(ctx context.Context, ref market.AssetRef) string
}

type AssetResolver interface {
	AssetInfo(ctx context.Context, ref market.AssetRef) (market.AssetInfo, error)
}

type AccountSource interface {
	Snapshot(ctx context.Context, user string) (*account.Snapshot, error)
}

// Holding is one asset found in the wallet, valued at the current price.
type Holding struct {
	Identifier string
	Ref        market.AssetRef
	Quantity   float64
	Price      float64
	ValueUSD   float64
	Quote      string
	Dex        string
	SzDecimals int
	PxDecimals int
	HasMeta    bool
}

type Scanner struct {
	market  MarketSource
	assets  AssetResolver
	account AccountSource
	log     *zap.Logger
}

func NewScanner(mkt MarketSource, assets AssetResolver, acct AccountSource, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{market: mkt, assets: assets, account: acct, log: log}
}

// Scan lists non-USDC spot balances and open perp positions of user.
func (s *Scanner) Scan(ctx context.Context, user string) ([]Holding, error) {
	mkt, err := s.market.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}
	acct, err := s.account.Snapshot(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("account snapshot: %w", err)
	}
	for _, src := range append(mkt.Failed(), acct.Failed()...) {
		s.log.Warn("source unavailable during scan", zap.String("source", src))
	}

	var holdings []Holding
	balances := acct.Balances()
	tokens := make([]string, 0, len(balances))
	for token := range balances {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		amount := balances[token]
		if token == market.PrimaryStable || amount <= 0 {
			continue
		}
		pair, ok := mkt.SpotMeta().PairForBase(token)
		if !ok {
			s.log.Warn("no spot pair for token", zap.String("token", token))
			continue
		}
		h := Holding{Identifier: token, Ref: market.SpotRef(pair.Index, token), Quantity: amount}
		if px, ok := mkt.Mid(pair.Name); ok {
			h.Price = px
		} else if px, ok := mkt.Mid(h.Ref.Coin()); ok {
			h.Price = px
		} else if px, ok := mkt.Mid(token); ok {
			h.Price = px
		}
		h.ValueUSD = amount * h.Price
		s.complete(ctx, &h)
		holdings = append(holdings, h)
	}

	for _, pos := range acct.Positions() {
		if math.Abs(pos.Size) < dustSize || pos.Coin == "" {
			continue
		}
		h := Holding{
			Identifier: pos.Coin,
			Ref:        market.PerpFromIdentifier(pos.Coin, pos.Namespace),
			Quantity:   pos.Size,
			Dex:        pos.Namespace,
		}
		switch {
		case perpMark(mkt, h.Ref) > 0:
			h.Price = perpMark(mkt, h.Ref)
		case pos.HasMark && pos.MarkPrice > 0:
			h.Price = pos.MarkPrice
		default:
			h.Price = pos.EntryPrice
		}
		h.ValueUSD = math.Abs(h.Quantity) * h.Price
		s.complete(ctx, &h)
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func (s *Scanner) complete(ctx context.Context, h *Holding) {
	h.Quote = s.market.Quote(ctx, h.Ref)
	info, err := s.assets.AssetInfo(ctx, h.Ref)
	if err != nil {
		s.log.Warn("asset metadata unavailable", zap.String("asset", h.Identifier), zap.Error(err))
		return
	}
	h.SzDecimals, h.PxDecimals, h.HasMeta = info.SzDecimals, info.PxDecimals, true
}

func perpMark(mkt *market.Snapshot, ref market.AssetRef) float64 {
	ctx, ok := mkt.PerpContext(ref)
	if !ok {
		return 0
	}
	return ctx.MarkPrice
}

// NewTargets returns an empty target file with the generator's settings.
func NewTargets() *config.Targets {
	return &config.Targets{
		Settings: config.Settings{
			OrderSizeUSD:         newOrderSizeUSD,
			CooldownMinutes:      newCooldownMinutes,
			CheckIntervalSeconds: newCheckIntervalSec,
			DefaultFeePct:        newFeePct,
		},
		SpotTokens: map[string]*config.AssetTarget{},
		Perpetuals: map[string]*config.AssetTarget{},
	}
}

type MergeResult struct {
	Added   []string
	Updated []string
}

// Merge adds holdings missing from targets as disabled records and refreshes
// the metadata of existing ones. Settings and per-asset flags are kept.
func Merge(targets *config.Targets, holdings []Holding) MergeResult {
	if targets.SpotTokens == nil {
		targets.SpotTokens = map[string]*config.AssetTarget{}
	}
	if targets.Perpetuals == nil {
		targets.Perpetuals = map[string]*config.AssetTarget{}
	}
	var res MergeResult
	for _, h := range holdings {
		group := targets.Perpetuals
		if h.Ref.IsSpot() {
			group = targets.SpotTokens
		}
		existing, ok := group[h.Identifier]
		if !ok {
			group[h.Identifier] = newRecord(h)
			res.Added = append(res.Added, h.Identifier)
			continue
		}
		refresh(existing, h)
		res.Updated = append(res.Updated, h.Identifier)
	}
	return res
}

func newRecord(h Holding) *config.AssetTarget {
	rec := &config.AssetTarget{
		Enabled:          false,
		HoldUSD:          math.Max(math.Round(h.ValueUSD), minHoldUSD),
		BuyEnabled:       boolPtr(true),
		SellEnabled:      boolPtr(true),
		BuyThresholdPct:  floatPtr(newThresholdPct),
		SellThresholdPct: floatPtr(newThresholdPct),
		FeePct:           floatPtr(newFeePct),
	}
	refresh(rec, h)
	return rec
}

func refresh(rec *config.AssetTarget, h Holding) {
	if h.Ref.IsSpot() {
		rec.PairIndex = intPtr(h.Ref.PairIndex())
	} else if rec.Dex == "" {
		rec.Dex = h.Dex
	}
	if h.HasMeta {
		rec.SzDecimals = intPtr(h.SzDecimals)
		rec.PriceDecimals = intPtr(h.PxDecimals)
	}
	if h.Quote != "" {
		rec.QuoteAsset = h.Quote
	}
}

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
