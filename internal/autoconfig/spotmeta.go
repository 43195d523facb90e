package autoconfig

import (
	"sort"

	"hl-rebalancer/internal/market"
)

type PairInfo struct {
	PairIndex       int    `json:"pair_index"`
	QuoteAsset      string `json:"quote_asset"`
	QuoteTokenIndex int    `json:"quote_token_index"`
	MarketName      string `json:"market_name"`
}

type TokenPairs struct {
	TokenIndex int        `json:"token_index"`
	SzDecimals int        `json:"sz_decimals"`
	Pairs      []PairInfo `json:"pairs"`
}

// TokensWithPairs groups every spot pair under its base token name.
func TokensWithPairs(meta *market.SpotMeta) map[string]TokenPairs {
	out := make(map[string]TokenPairs)
	if meta == nil {
		return out
	}
	for idx, tok := range meta.Tokens {
		out[tok.Name] = TokenPairs{TokenIndex: idx, SzDecimals: tok.SzDecimals, Pairs: []PairInfo{}}
	}
	for _, pair := range meta.Pairs {
		if pair.Base == "" {
			continue
		}
		entry, ok := out[pair.Base]
		if !ok {
			entry = TokenPairs{TokenIndex: pair.BaseToken, SzDecimals: pair.BaseSzDecimals}
		}
		entry.Pairs = append(entry.Pairs, PairInfo{
			PairIndex:       pair.Index,
			QuoteAsset:      pair.Quote,
			QuoteTokenIndex: pair.QuoteToken,
			MarketName:      pair.Name,
		})
		out[pair.Base] = entry
	}
	for name, entry := range out {
		sort.Slice(entry.Pairs, func(i, j int) bool { return entry.Pairs[i].PairIndex < entry.Pairs[j].PairIndex })
		out[name] = entry
	}
	return out
}
