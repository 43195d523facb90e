package market

import "math"

const (
	SourceMid          = "mid"
	SourceAssetCtx     = "asset_ctx"
	SourcePositionMark = "position_mark"
	SourcePnLDerived   = "pnl_derived"
	SourceEntry        = "entry"
)

// PositionPrice carries the price-relevant fields of a live position.
type PositionPrice struct {
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	HasMark       bool
	UnrealizedPnL float64
}

type PriceQuery struct {
	// Identifier is the configured key, e.g. "HYPE" or "xyz:TSLA".
	Identifier string
	Ref        AssetRef
	Snapshot   *Snapshot
	Position   *PositionPrice
}

type PriceSource struct {
	Name   string
	Lookup func(PriceQuery) (float64, bool)
}

// PriceChain is tried in order; the first source returning a positive finite
// price wins.
type PriceChain []PriceSource

func DefaultPriceChain() PriceChain {
	return PriceChain{
		{Name: SourceMid, Lookup: midPrice},
		{Name: SourceAssetCtx, Lookup: assetCtxPrice},
		{Name: SourcePositionMark, Lookup: positionMarkPrice},
		{Name: SourcePnLDerived, Lookup: pnlDerivedPrice},
		{Name: SourceEntry, Lookup: entryPrice},
	}
}

func (c PriceChain) Resolve(q PriceQuery) (float64, string, bool) {
	for _, src := range c {
		px, ok := src.Lookup(q)
		if ok && usablePrice(px) {
			return px, src.Name, true
		}
	}
	return 0, "", false
}

func usablePrice(px float64) bool {
	return px > 0 && !math.IsInf(px, 0) && !math.IsNaN(px)
}

func midPrice(q PriceQuery) (float64, bool) {
	if q.Snapshot == nil {
		return 0, false
	}
	var keys []string
	if q.Ref.IsSpot() {
		keys = append(keys, q.Ref.Coin())
		if pair, ok := q.Snapshot.SpotPair(q.Ref.PairIndex()); ok && pair.Name != "" {
			keys = append(keys, pair.Name)
		}
		keys = append(keys, q.Identifier)
	} else {
		keys = append(keys, q.Identifier, q.Ref.Coin())
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if px, ok := q.Snapshot.Mid(key); ok && usablePrice(px) {
			return px, true
		}
	}
	return 0, false
}

func assetCtxPrice(q PriceQuery) (float64, bool) {
	if q.Snapshot == nil || !q.Ref.IsPerp() {
		return 0, false
	}
	ctx, ok := q.Snapshot.PerpContext(q.Ref)
	if !ok {
		return 0, false
	}
	return ctx.MarkPrice, true
}

func positionMarkPrice(q PriceQuery) (float64, bool) {
	if q.Position == nil || !q.Position.HasMark {
		return 0, false
	}
	return q.Position.MarkPrice, true
}

// pnlDerivedPrice backs the mark out of unrealized PnL. It ignores any funding
// contribution to PnL, so callers should treat it as approximate.
func pnlDerivedPrice(q PriceQuery) (float64, bool) {
	if !q.Ref.IsPerp() || q.Position == nil {
		return 0, false
	}
	return DerivedMark(q.Position.EntryPrice, q.Position.Size, q.Position.UnrealizedPnL)
}

// DerivedMark returns entry + pnl/size for longs and entry - pnl/|size| for shorts.
func DerivedMark(entry, size, pnl float64) (float64, bool) {
	if size == 0 || pnl == 0 || entry <= 0 {
		return 0, false
	}
	if size > 0 {
		return entry + pnl/size, true
	}
	return entry - pnl/math.Abs(size), true
}

func entryPrice(q PriceQuery) (float64, bool) {
	if q.Position == nil {
		return 0, false
	}
	return q.Position.EntryPrice, true
}
