package market

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const PrimaryStable = "USDC"

// staticCollateral is used when a builder dex's metadata cannot be fetched.
var staticCollateral = map[string]string{
	"flx":  "USDH",
	"vntl": "USDH",
	"xyz":  "USDC",
	"hyna": "USDE",
}

func StaticCollateral(dex string) string {
	if quote, ok := staticCollateral[dex]; ok {
		return quote
	}
	return PrimaryStable
}

type quoteEntry struct {
	quote string
	at    time.Time
}

// QuoteResolver maps an asset to the currency its value is denominated in.
// Successful resolutions are cached per spot pair or per dex; ttl 0 keeps them
// for the process lifetime. Fallback answers are never cached.
type QuoteResolver struct {
	meta *MetaCache
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]quoteEntry
}

func NewQuoteResolver(meta *MetaCache, ttl time.Duration, log *zap.Logger) *QuoteResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuoteResolver{
		meta:  meta,
		ttl:   ttl,
		log:   log,
		now:   time.Now,
		cache: make(map[string]quoteEntry),
	}
}

func (r *QuoteResolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[string]quoteEntry)
	r.mu.Unlock()
}

// Resolve never fails: on missing metadata it degrades to a static table or USDC.
func (r *QuoteResolver) Resolve(ctx context.Context, ref AssetRef) string {
	switch {
	case ref.IsPerp() && ref.Namespace() == "":
		return PrimaryStable
	case ref.IsPerp():
		return r.cached("dex:"+ref.Namespace(), func() (string, bool) {
			return r.dexCollateral(ctx, ref.Namespace())
		}, StaticCollateral(ref.Namespace()))
	case ref.IsSpot():
		return r.cached("spot:"+strconv.Itoa(ref.PairIndex()), func() (string, bool) {
			return r.spotQuote(ctx, ref.PairIndex())
		}, PrimaryStable)
	default:
		return PrimaryStable
	}
}

func (r *QuoteResolver) cached(key string, resolve func() (string, bool), fallback string) string {
	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()
	if ok && (r.ttl <= 0 || r.now().Sub(entry.at) < r.ttl) {
		return entry.quote
	}
	quote, ok := resolve()
	if !ok {
		return fallback
	}
	r.mu.Lock()
	r.cache[key] = quoteEntry{quote: quote, at: r.now()}
	r.mu.Unlock()
	return quote
}

func (r *QuoteResolver) dexCollateral(ctx context.Context, dex string) (string, bool) {
	perp, err := r.meta.PerpMeta(ctx, dex)
	if err != nil {
		r.log.Warn("dex collateral lookup failed", zap.String("dex", dex), zap.Error(err))
		return "", false
	}
	if !perp.HasCollateral {
		return "", false
	}
	spot, err := r.meta.SpotMeta(ctx)
	if err != nil {
		r.log.Warn("spot meta unavailable for collateral", zap.String("dex", dex), zap.Error(err))
		return "", false
	}
	name, ok := spot.TokenName(perp.CollateralToken)
	if !ok {
		return PrimaryStable, true
	}
	return name, true
}

func (r *QuoteResolver) spotQuote(ctx context.Context, pairIndex int) (string, bool) {
	spot, err := r.meta.SpotMeta(ctx)
	if err != nil {
		r.log.Warn("spot quote lookup failed", zap.Int("pair", pairIndex), zap.Error(err))
		return "", false
	}
	pair, ok := spot.Pairs[pairIndex]
	if !ok || pair.Quote == "" {
		return "", false
	}
	return pair.Quote, true
}
