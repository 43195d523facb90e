package market

import "testing"

func TestParsePerpUniverseArray(t *testing.T) {
	payload := []any{
		map[string]any{
			"collateralToken": 360,
			"universe": []any{
				map[string]any{"name": "flx:GOLD", "szDecimals": 2},
				map[string]any{"name": "flx:OIL", "szDecimals": 1, "isDelisted": true},
			},
		},
		[]any{
			map[string]any{"markPx": "2400.5", "oraclePx": "2401"},
			map[string]any{"markPx": 70.0},
		},
	}

	meta, ctxs, err := parsePerpUniverse("flx", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !meta.HasCollateral || meta.CollateralToken != 360 {
		t.Fatalf("expected collateral 360, got %+v", meta)
	}
	gold := ctxs["flx:GOLD"]
	if gold.MarkPrice != 2400.5 || gold.OraclePrice != 2401 || gold.Index != 0 {
		t.Fatalf("unexpected gold ctx %+v", gold)
	}
	if !meta.Assets["flx:OIL"].Delisted || meta.Assets["flx:OIL"].SzDecimals != 1 {
		t.Fatalf("unexpected oil meta %+v", meta.Assets["flx:OIL"])
	}
}

func TestParsePerpUniverseMissingCollateral(t *testing.T) {
	payload := []any{
		map[string]any{"universe": []any{map[string]any{"name": "BTC", "szDecimals": 5}}},
		[]any{},
	}
	meta, ctxs, err := parsePerpUniverse("", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.HasCollateral {
		t.Fatalf("expected no collateral")
	}
	if _, ok := ctxs["BTC"]; ok {
		t.Fatalf("expected no BTC context without ctx entry")
	}
	if meta.Assets["BTC"].SzDecimals != 5 {
		t.Fatalf("expected sz decimals 5")
	}
}

func TestParsePerpUniverseEmpty(t *testing.T) {
	if _, _, err := parsePerpUniverse("", []any{map[string]any{}, []any{}}); err == nil {
		t.Fatalf("expected error for empty universe")
	}
}

func TestParseSpotMeta(t *testing.T) {
	payload := map[string]any{
		"universe": []any{
			map[string]any{"name": "PURR/USDC", "index": 0, "tokens": []any{1, 0}},
			map[string]any{"name": "@1", "index": 1, "tokens": []any{2, 0}},
		},
		"tokens": []any{
			map[string]any{"name": "USDC", "index": 0, "szDecimals": 8},
			map[string]any{"name": "PURR", "index": 1, "szDecimals": 0},
			map[string]any{"name": "HFUN", "index": 2, "szDecimals": 2},
		},
	}

	meta, err := parseSpotMeta(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pair := meta.Pairs[1]
	if pair.Base != "HFUN" || pair.Quote != "USDC" || pair.BaseSzDecimals != 2 {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if meta.Pairs[0].BaseSzDecimals != 0 {
		t.Fatalf("expected PURR sz decimals 0, got %d", meta.Pairs[0].BaseSzDecimals)
	}
}

func TestParseMidsFormats(t *testing.T) {
	flat := parseMids(map[string]any{"BTC": "100", "@1": 2.5, "BAD": "x"})
	if flat["BTC"] != 100 || flat["@1"] != 2.5 {
		t.Fatalf("unexpected flat mids %v", flat)
	}
	if _, ok := flat["BAD"]; ok {
		t.Fatalf("expected unparsable mid to be dropped")
	}
	nested := parseMids(map[string]any{"data": map[string]any{"mids": map[string]any{"ETH": "3000"}}})
	if nested["ETH"] != 3000 {
		t.Fatalf("unexpected nested mids %v", nested)
	}
}

func TestParsePerpDexs(t *testing.T) {
	index := parsePerpDexs([]any{nil, map[string]any{"name": "xyz"}, map[string]any{"name": "flx"}})
	if index["xyz"] != 1 || index["flx"] != 2 {
		t.Fatalf("unexpected dex index %v", index)
	}
}
