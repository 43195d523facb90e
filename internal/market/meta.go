package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	spotAssetOffset    = 10000
	builderAssetOffset = 100000
	builderDexStride   = 10000

	perpMaxDecimals = 6
	spotMaxDecimals = 8
)

// InfoClient is the subset of the info API the market package reads.
type InfoClient interface {
	AllMids(ctx context.Context) (map[string]any, error)
	SpotMeta(ctx context.Context) (map[string]any, error)
	MetaAndAssetCtxs(ctx context.Context, dex string) (any, error)
	PerpDexs(ctx context.Context) (any, error)
}

type TokenMeta struct {
	Index      int
	Name       string
	SzDecimals int
}

type SpotPair struct {
	Index          int
	Name           string
	BaseToken      int
	QuoteToken     int
	Base           string
	Quote          string
	BaseSzDecimals int
}

type SpotMeta struct {
	Pairs  map[int]SpotPair
	Tokens map[int]TokenMeta
}

// PairForBase returns the first pair (lowest index) whose base token is named token.
func (m *SpotMeta) PairForBase(token string) (SpotPair, bool) {
	if m == nil {
		return SpotPair{}, false
	}
	best := SpotPair{Index: -1}
	for _, pair := range m.Pairs {
		if pair.Base != token {
			continue
		}
		if best.Index < 0 || pair.Index < best.Index {
			best = pair
		}
	}
	return best, best.Index >= 0
}

func (m *SpotMeta) TokenName(index int) (string, bool) {
	if m == nil {
		return "", false
	}
	tok, ok := m.Tokens[index]
	return tok.Name, ok
}

type PerpAssetMeta struct {
	Name       string
	Index      int
	SzDecimals int
	Delisted   bool
}

type PerpMeta struct {
	Dex             string
	Assets          map[string]PerpAssetMeta
	CollateralToken int
	HasCollateral   bool
}

// Asset finds an asset by universe name, trying the namespaced and bare forms.
func (m *PerpMeta) Asset(ref AssetRef) (PerpAssetMeta, bool) {
	if m == nil {
		return PerpAssetMeta{}, false
	}
	if a, ok := m.Assets[ref.Coin()]; ok {
		return a, true
	}
	a, ok := m.Assets[ref.Symbol()]
	return a, ok
}

// AssetInfo is the exchange-side identity and precision of one asset.
type AssetInfo struct {
	ID         int
	SzDecimals int
	PxDecimals int
}

// MetaCache holds exchange metadata (spot universe, perp universes per dex,
// builder dex indices). Entries expire after ttl; ttl 0 keeps them for the
// process lifetime. Invalidate drops everything.
type MetaCache struct {
	info InfoClient
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	spot     *SpotMeta
	spotAt   time.Time
	perps    map[string]*PerpMeta
	perpsAt  map[string]time.Time
	dexIndex map[string]int
	dexAt    time.Time
}

func NewMetaCache(info InfoClient, ttl time.Duration, log *zap.Logger) *MetaCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &MetaCache{
		info:    info,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
		perps:   make(map[string]*PerpMeta),
		perpsAt: make(map[string]time.Time),
	}
}

func (c *MetaCache) fresh(at time.Time) bool {
	if at.IsZero() {
		return false
	}
	return c.ttl <= 0 || c.now().Sub(at) < c.ttl
}

func (c *MetaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spot = nil
	c.spotAt = time.Time{}
	c.perps = make(map[string]*PerpMeta)
	c.perpsAt = make(map[string]time.Time)
	c.dexIndex = nil
	c.dexAt = time.Time{}
}

func (c *MetaCache) SpotMeta(ctx context.Context) (*SpotMeta, error) {
	c.mu.Lock()
	if c.spot != nil && c.fresh(c.spotAt) {
		spot := c.spot
		c.mu.Unlock()
		return spot, nil
	}
	c.mu.Unlock()

	payload, err := c.info.SpotMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("spot meta: %w", err)
	}
	spot, err := parseSpotMeta(payload)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.spot = spot
	c.spotAt = c.now()
	c.mu.Unlock()
	return spot, nil
}

// PerpMeta returns cached metadata for dex, fetching it when missing or stale.
func (c *MetaCache) PerpMeta(ctx context.Context, dex string) (*PerpMeta, error) {
	c.mu.Lock()
	if meta, ok := c.perps[dex]; ok && c.fresh(c.perpsAt[dex]) {
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()
	meta, _, err := c.FetchPerp(ctx, dex)
	return meta, err
}

// FetchPerp always hits the API, stores the metadata and returns the live contexts.
func (c *MetaCache) FetchPerp(ctx context.Context, dex string) (*PerpMeta, map[string]PerpContext, error) {
	payload, err := c.info.MetaAndAssetCtxs(ctx, dex)
	if err != nil {
		return nil, nil, fmt.Errorf("metaAndAssetCtxs %q: %w", dex, err)
	}
	meta, contexts, err := parsePerpUniverse(dex, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("metaAndAssetCtxs %q: %w", dex, err)
	}
	c.mu.Lock()
	c.perps[dex] = meta
	c.perpsAt[dex] = c.now()
	c.mu.Unlock()
	return meta, contexts, nil
}

func (c *MetaCache) DexIndex(ctx context.Context, dex string) (int, error) {
	if dex == "" {
		return 0, nil
	}
	c.mu.Lock()
	if c.dexIndex != nil && c.fresh(c.dexAt) {
		idx, ok := c.dexIndex[dex]
		c.mu.Unlock()
		if !ok {
			return 0, fmt.Errorf("unknown perp dex %q", dex)
		}
		return idx, nil
	}
	c.mu.Unlock()

	payload, err := c.info.PerpDexs(ctx)
	if err != nil {
		return 0, fmt.Errorf("perpDexs: %w", err)
	}
	index := parsePerpDexs(payload)
	c.mu.Lock()
	c.dexIndex = index
	c.dexAt = c.now()
	c.mu.Unlock()
	idx, ok := index[dex]
	if !ok {
		return 0, fmt.Errorf("unknown perp dex %q", dex)
	}
	return idx, nil
}

// AssetInfo resolves the order asset id and precision for ref.
func (c *MetaCache) AssetInfo(ctx context.Context, ref AssetRef) (AssetInfo, error) {
	switch ref.Kind() {
	case KindSpot:
		spot, err := c.SpotMeta(ctx)
		if err != nil {
			return AssetInfo{}, err
		}
		pair, ok := spot.Pairs[ref.PairIndex()]
		if !ok {
			return AssetInfo{}, fmt.Errorf("spot pair %d not found", ref.PairIndex())
		}
		if pair.BaseSzDecimals < 0 {
			return AssetInfo{}, fmt.Errorf("spot pair %d missing sz decimals", ref.PairIndex())
		}
		return AssetInfo{
			ID:         spotAssetOffset + pair.Index,
			SzDecimals: pair.BaseSzDecimals,
			PxDecimals: pxDecimals(spotMaxDecimals, pair.BaseSzDecimals),
		}, nil
	case KindPerp:
		meta, err := c.PerpMeta(ctx, ref.Namespace())
		if err != nil {
			return AssetInfo{}, err
		}
		asset, ok := meta.Asset(ref)
		if !ok {
			return AssetInfo{}, fmt.Errorf("perp %s not found", ref.Coin())
		}
		if asset.Delisted {
			return AssetInfo{}, fmt.Errorf("perp %s is delisted", ref.Coin())
		}
		if asset.SzDecimals < 0 {
			return AssetInfo{}, fmt.Errorf("perp %s missing sz decimals", ref.Coin())
		}
		id := asset.Index
		if ref.Namespace() != "" {
			dexIdx, err := c.DexIndex(ctx, ref.Namespace())
			if err != nil {
				return AssetInfo{}, err
			}
			id = builderAssetOffset + dexIdx*builderDexStride + asset.Index
		}
		return AssetInfo{
			ID:         id,
			SzDecimals: asset.SzDecimals,
			PxDecimals: pxDecimals(perpMaxDecimals, asset.SzDecimals),
		}, nil
	default:
		return AssetInfo{}, fmt.Errorf("unsupported asset kind %v", ref.Kind())
	}
}

func pxDecimals(max, szDecimals int) int {
	if d := max - szDecimals; d > 0 {
		return d
	}
	return 0
}
