package account

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"hl-rebalancer/internal/market"

	"go.uber.org/zap"
)

const (
	// positionEpsilon is the size below which a position counts as closed.
	positionEpsilon = 1e-8
	markUnavailable = "N/A"
	usdc            = "USDC"
)

// InfoClient is the subset of the info API used to read account state.
type InfoClient interface {
	ClearinghouseState(ctx context.Context, user, dex string) (map[string]any, error)
	SpotClearinghouseState(ctx context.Context, user string) (map[string]any, error)
}

type Account struct {
	info  InfoClient
	dexes []string
	log   *zap.Logger
}

// New builds a reader over the main market plus the given satellite dexes.
func New(info InfoClient, dexes []string, log *zap.Logger) *Account {
	if log == nil {
		log = zap.NewNop()
	}
	return &Account{info: info, dexes: append([]string(nil), dexes...), log: log}
}

// Snapshot reads spot balances and every namespace's positions for user. A
// failing source is logged, listed in Snapshot.Failed and skipped; only
// context cancellation aborts.
func (a *Account) Snapshot(ctx context.Context, user string) (*Snapshot, error) {
	user = strings.TrimSpace(user)
	snap := newSnapshot(user)
	log := a.log.With(zap.String("user", user))

	spot, err := a.info.SpotClearinghouseState(ctx, user)
	if err != nil {
		log.Warn("spot balances fetch failed", zap.Error(err))
		snap.failed = append(snap.failed, "spot")
	} else {
		for token, total := range parseBalances(spot) {
			snap.balances[token] = total
		}
	}

	for _, dex := range append([]string{""}, a.dexes...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state, err := a.info.ClearinghouseState(ctx, user, dex)
		if err != nil {
			log.Warn("positions fetch failed", zap.String("dex", dexLabel(dex)), zap.Error(err))
			snap.failed = append(snap.failed, "positions:"+dexLabel(dex))
			continue
		}
		if dex == "" {
			if w, ok := floatFromAny(state["withdrawable"]); ok && w > 0 {
				snap.withdrawable = w
				snap.balances[usdc] += w
			}
		}
		for _, pos := range parsePositions(dex, state) {
			snap.add(pos)
		}
	}
	return snap, nil
}

func parseBalances(payload map[string]any) map[string]float64 {
	balances := make(map[string]float64)
	raw, ok := payload["balances"].([]any)
	if !ok {
		return balances
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		token := stringFromAny(entry["coin"])
		if token == "" {
			token = stringFromAny(entry["token"])
		}
		if token == "" {
			continue
		}
		if val, ok := floatFromAny(entry["total"]); ok {
			balances[token] = val
		}
	}
	return balances
}

// parsePositions reads assetPositions[].position, dropping closed positions.
func parsePositions(dex string, payload map[string]any) []Position {
	raw, ok := payload["assetPositions"].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	positions := make([]Position, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pos := entry
		if nested, ok := entry["position"].(map[string]any); ok {
			pos = nested
		}
		coin := stringFromAny(pos["coin"])
		if coin == "" {
			continue
		}
		size, _ := floatFromAny(pos["szi"])
		if math.Abs(size) < positionEpsilon {
			continue
		}
		_, bare := market.SplitNamespace(coin)
		p := Position{
			Namespace: dex,
			Asset:     bare,
			Coin:      coin,
			Size:      size,
		}
		p.EntryPrice, _ = floatFromAny(pos["entryPx"])
		if mark := stringFromAny(pos["markPx"]); mark != markUnavailable {
			if px, ok := floatFromAny(pos["markPx"]); ok && px > 0 {
				p.MarkPrice = px
				p.HasMark = true
			}
		}
		if pnl, ok := floatFromAny(pos["unrealizedPnl"]); ok {
			p.UnrealizedPnL = pnl
			p.HasPnL = true
		}
		p.PositionValue, _ = floatFromAny(pos["positionValue"])
		positions = append(positions, p)
	}
	return positions
}

func dexLabel(dex string) string {
	if dex == "" {
		return "main"
	}
	return dex
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
