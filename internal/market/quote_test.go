package market

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestQuoteResolverPerps(t *testing.T) {
	info := newFakeInfo()
	meta := NewMetaCache(info, 0, zap.NewNop())
	quotes := NewQuoteResolver(meta, 0, zap.NewNop())
	ctx := context.Background()

	if got := quotes.Resolve(ctx, PerpRef("", "BTC")); got != "USDC" {
		t.Fatalf("expected USDC for main perp, got %s", got)
	}
	if got := quotes.Resolve(ctx, PerpRef("flx", "GOLD")); got != "USDH" {
		t.Fatalf("expected USDH for flx, got %s", got)
	}
	if got := quotes.Resolve(ctx, PerpRef("xyz", "TSLA")); got != "USDC" {
		t.Fatalf("expected USDC for xyz, got %s", got)
	}
}

func TestQuoteResolverCachesPerDex(t *testing.T) {
	info := newFakeInfo()
	meta := NewMetaCache(info, 0, zap.NewNop())
	quotes := NewQuoteResolver(meta, 0, zap.NewNop())
	ctx := context.Background()

	quotes.Resolve(ctx, PerpRef("flx", "GOLD"))
	meta.Invalidate()
	info.failDex["flx"] = true
	if got := quotes.Resolve(ctx, PerpRef("flx", "OIL")); got != "USDH" {
		t.Fatalf("expected cached USDH, got %s", got)
	}
	if info.calls["metaAndAssetCtxs:flx"] != 1 {
		t.Fatalf("expected one collateral fetch, got %d", info.calls["metaAndAssetCtxs:flx"])
	}
}

func TestQuoteResolverStaticFallback(t *testing.T) {
	info := newFakeInfo()
	info.failDex["hyna"] = true
	info.failDex["vntl"] = true
	meta := NewMetaCache(info, 0, zap.NewNop())
	quotes := NewQuoteResolver(meta, 0, zap.NewNop())
	ctx := context.Background()

	cases := map[string]string{"hyna": "USDE", "vntl": "USDH", "unknown": "USDC"}
	for dex, want := range cases {
		if got := quotes.Resolve(ctx, PerpRef(dex, "X")); got != want {
			t.Fatalf("%s: expected %s, got %s", dex, want, got)
		}
	}
	// Fallbacks are not cached, so a recovered dex resolves from metadata.
	before := info.calls["metaAndAssetCtxs:hyna"]
	quotes.Resolve(ctx, PerpRef("hyna", "X"))
	if info.calls["metaAndAssetCtxs:hyna"] != before+1 {
		t.Fatalf("expected fallback to retry metadata fetch")
	}
}

func TestQuoteResolverSpot(t *testing.T) {
	info := newFakeInfo()
	meta := NewMetaCache(info, 0, zap.NewNop())
	quotes := NewQuoteResolver(meta, 0, zap.NewNop())
	ctx := context.Background()

	if got := quotes.Resolve(ctx, SpotRef(230, "HYPE")); got != "USDH" {
		t.Fatalf("expected USDH quote for pair 230, got %s", got)
	}
	if got := quotes.Resolve(ctx, SpotRef(107, "HYPE")); got != "USDC" {
		t.Fatalf("expected USDC quote for pair 107, got %s", got)
	}
	if got := quotes.Resolve(ctx, SpotRef(999, "NOPE")); got != "USDC" {
		t.Fatalf("expected USDC default for unknown pair, got %s", got)
	}
}

func TestQuoteResolverSpotMetaDown(t *testing.T) {
	info := newFakeInfo()
	info.failSpot = true
	meta := NewMetaCache(info, 0, zap.NewNop())
	quotes := NewQuoteResolver(meta, 0, zap.NewNop())
	if got := quotes.Resolve(context.Background(), SpotRef(230, "HYPE")); got != "USDC" {
		t.Fatalf("expected USDC default, got %s", got)
	}
}

func TestQuoteResolverTTL(t *testing.T) {
	info := newFakeInfo()
	meta := NewMetaCache(info, time.Minute, zap.NewNop())
	quotes := NewQuoteResolver(meta, time.Minute, zap.NewNop())
	now := time.Unix(1000, 0)
	quotes.now = func() time.Time { return now }
	meta.now = func() time.Time { return now }
	ctx := context.Background()

	quotes.Resolve(ctx, PerpRef("flx", "GOLD"))
	now = now.Add(2 * time.Minute)
	quotes.Resolve(ctx, PerpRef("flx", "GOLD"))
	if info.calls["metaAndAssetCtxs:flx"] != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", info.calls["metaAndAssetCtxs:flx"])
	}
}
