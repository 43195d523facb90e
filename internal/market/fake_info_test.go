package market

import (
	"context"
	"errors"
)

type fakeInfo struct {
	mids     map[string]any
	spot     map[string]any
	perps    map[string]any
	perpDexs any
	failDex  map[string]bool
	failSpot bool
	failMids bool
	calls    map[string]int
}

func newFakeInfo() *fakeInfo {
	return &fakeInfo{
		mids: map[string]any{"BTC": "100000", "@107": "40.5", "PURR/USDC": "0.2"},
		spot: map[string]any{
			"universe": []any{
				map[string]any{"name": "PURR/USDC", "index": 0, "tokens": []any{1, 0}},
				map[string]any{"name": "@107", "index": 107, "tokens": []any{150, 0}},
				map[string]any{"name": "@230", "index": 230, "tokens": []any{150, 360}},
			},
			"tokens": []any{
				map[string]any{"name": "USDC", "index": 0, "szDecimals": 8},
				map[string]any{"name": "PURR", "index": 1, "szDecimals": 0},
				map[string]any{"name": "HYPE", "index": 150, "szDecimals": 2},
				map[string]any{"name": "USDH", "index": 360, "szDecimals": 2},
				map[string]any{"name": "USDE", "index": 235, "szDecimals": 2},
			},
		},
		perps: map[string]any{
			"": []any{
				map[string]any{"universe": []any{
					map[string]any{"name": "BTC", "szDecimals": 5},
					map[string]any{"name": "ETH", "szDecimals": 4},
					map[string]any{"name": "LUNA", "szDecimals": 1, "isDelisted": true},
				}},
				[]any{
					map[string]any{"markPx": "100010", "oraclePx": "100000"},
					map[string]any{"markPx": "3000"},
					map[string]any{"markPx": "0.1"},
				},
			},
			"xyz": []any{
				map[string]any{"collateralToken": 0, "universe": []any{
					map[string]any{"name": "xyz:TSLA", "szDecimals": 3},
				}},
				[]any{map[string]any{"markPx": "250.5"}},
			},
			"flx": []any{
				map[string]any{"collateralToken": 360, "universe": []any{
					map[string]any{"name": "flx:GOLD", "szDecimals": 2},
				}},
				[]any{map[string]any{"markPx": "2400"}},
			},
		},
		perpDexs: []any{nil, map[string]any{"name": "xyz"}, map[string]any{"name": "flx"}},
		failDex:  map[string]bool{},
		calls:    map[string]int{},
	}
}

var errFake = errors.New("unavailable")

func (f *fakeInfo) AllMids(ctx context.Context) (map[string]any, error) {
	f.calls["allMids"]++
	if f.failMids {
		return nil, errFake
	}
	return f.mids, nil
}

func (f *fakeInfo) SpotMeta(ctx context.Context) (map[string]any, error) {
	f.calls["spotMeta"]++
	if f.failSpot {
		return nil, errFake
	}
	return f.spot, nil
}

func (f *fakeInfo) MetaAndAssetCtxs(ctx context.Context, dex string) (any, error) {
	f.calls["metaAndAssetCtxs:"+dex]++
	if f.failDex[dex] {
		return nil, errFake
	}
	payload, ok := f.perps[dex]
	if !ok {
		return nil, errFake
	}
	return payload, nil
}

func (f *fakeInfo) PerpDexs(ctx context.Context) (any, error) {
	f.calls["perpDexs"]++
	return f.perpDexs, nil
}
