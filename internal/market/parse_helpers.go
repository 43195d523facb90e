package market

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// parsePerpUniverse reads a metaAndAssetCtxs payload into per-asset metadata and
// contexts keyed by universe name.
func parsePerpUniverse(dex string, payload any) (*PerpMeta, map[string]PerpContext, error) {
	universe, ctxs, metaMap := extractUniverseAndCtxs(payload, "assetCtxs")
	if len(universe) == 0 {
		return nil, nil, errors.New("metaAndAssetCtxs missing universe")
	}
	meta := &PerpMeta{Dex: dex, Assets: make(map[string]PerpAssetMeta, len(universe))}
	if metaMap != nil {
		if raw, ok := metaMap["collateralToken"]; ok {
			if idx := intFromAny(raw, -1); idx >= 0 {
				meta.CollateralToken = idx
				meta.HasCollateral = true
			}
		}
	}
	contexts := make(map[string]PerpContext, len(universe))
	for i, entry := range universe {
		m, ok := toMap(entry)
		if !ok {
			continue
		}
		name := stringFromMap(m, "name", "coin", "symbol")
		if name == "" {
			continue
		}
		asset := PerpAssetMeta{
			Name:       name,
			Index:      i,
			SzDecimals: intFromAny(m["szDecimals"], -1),
			Delisted:   boolFromAny(m["isDelisted"]),
		}
		meta.Assets[name] = asset
		ctx, ok := indexedMap(ctxs, i)
		if !ok {
			continue
		}
		contexts[name] = PerpContext{
			Name:        name,
			Index:       i,
			SzDecimals:  asset.SzDecimals,
			MarkPrice:   floatFromMap(ctx, "markPx", "markPrice"),
			MidPrice:    floatFromMap(ctx, "midPx", "midPrice"),
			OraclePrice: floatFromMap(ctx, "oraclePx", "oraclePrice"),
		}
	}
	if len(meta.Assets) == 0 {
		return nil, nil, errors.New("no perp assets parsed")
	}
	return meta, contexts, nil
}

func parseSpotMeta(payload any) (*SpotMeta, error) {
	universe, tokens := extractSpotUniverseAndTokens(payload)
	if len(universe) == 0 {
		return nil, errors.New("spot meta missing universe")
	}
	meta := &SpotMeta{
		Pairs:  make(map[int]SpotPair, len(universe)),
		Tokens: tokenMetaByIndex(tokens),
	}
	for i, entry := range universe {
		m, ok := toMap(entry)
		if !ok {
			continue
		}
		pair := SpotPair{
			Index:      intFromAny(m["index"], i),
			Name:       stringFromMap(m, "name"),
			BaseToken:  -1,
			QuoteToken: -1,
		}
		if toks, ok := toSlice(m["tokens"]); ok && len(toks) >= 2 {
			pair.BaseToken = intFromAny(toks[0], -1)
			pair.QuoteToken = intFromAny(toks[1], -1)
		}
		if base, ok := meta.Tokens[pair.BaseToken]; ok {
			pair.Base = base.Name
			pair.BaseSzDecimals = base.SzDecimals
		} else {
			pair.BaseSzDecimals = -1
		}
		if quote, ok := meta.Tokens[pair.QuoteToken]; ok {
			pair.Quote = quote.Name
		}
		meta.Pairs[pair.Index] = pair
	}
	if len(meta.Pairs) == 0 {
		return nil, errors.New("no spot pairs parsed")
	}
	return meta, nil
}

// parseMids accepts either a flat coin->price map or a ws envelope with data.mids.
func parseMids(payload map[string]any) map[string]float64 {
	source := payload
	if data, ok := toMap(payload["data"]); ok {
		source = data
	}
	if nested, ok := toMap(source["mids"]); ok {
		source = nested
	}
	mids := make(map[string]float64, len(source))
	for coin, raw := range source {
		if px, ok := floatFromAny(raw); ok && px > 0 {
			mids[coin] = px
		}
	}
	return mids
}

// parsePerpDexs maps dex name to its position in the perpDexs list.
func parsePerpDexs(payload any) map[string]int {
	items, ok := toSlice(payload)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(items))
	for i, item := range items {
		m, ok := toMap(item)
		if !ok {
			continue
		}
		if name := stringFromMap(m, "name"); name != "" {
			out[name] = i
		}
	}
	return out
}

func extractUniverseAndCtxs(payload any, ctxKey string) ([]any, []any, map[string]any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 2 {
		metaMap, _ := toMap(arr[0])
		if metaMap != nil {
			if universe, ok := toSlice(metaMap["universe"]); ok {
				ctxs, _ := toSlice(arr[1])
				return universe, ctxs, metaMap
			}
		}
		if universe, ok := toSlice(arr[0]); ok {
			ctxs, _ := toSlice(arr[1])
			return universe, ctxs, nil
		}
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		ctxs, _ := toSlice(metaMap[ctxKey])
		return universe, ctxs, metaMap
	}
	return nil, nil, nil
}

func extractSpotUniverseAndTokens(payload any) ([]any, []any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 1 {
		if metaMap, ok := toMap(arr[0]); ok {
			universe, _ := toSlice(metaMap["universe"])
			tokens, _ := toSlice(metaMap["tokens"])
			return universe, tokens
		}
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		tokens, _ := toSlice(metaMap["tokens"])
		return universe, tokens
	}
	return nil, nil
}

func tokenMetaByIndex(tokens []any) map[int]TokenMeta {
	out := make(map[int]TokenMeta, len(tokens))
	for i, item := range tokens {
		meta, ok := toMap(item)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name")
		if name == "" {
			continue
		}
		index := intFromAny(meta["index"], i)
		out[index] = TokenMeta{
			Index:      index,
			Name:       name,
			SzDecimals: intFromAny(meta["szDecimals"], -1),
		}
	}
	return out
}

func indexedMap(items []any, idx int) (map[string]any, bool) {
	if idx < 0 || idx >= len(items) {
		return nil, false
	}
	return toMap(items[idx])
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
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

func intFromAny(v any, fallback int) int {
	if f, ok := floatFromAny(v); ok {
		return int(f)
	}
	return fallback
}

func boolFromAny(v any) bool {
	b, _ := v.(bool)
	return b
}
