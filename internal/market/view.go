package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hl-rebalancer/internal/hl/ws"

	"go.uber.org/zap"
)

type PerpContext struct {
	Name        string
	Index       int
	SzDecimals  int
	MarkPrice   float64
	MidPrice    float64
	OraclePrice float64
}

// Snapshot is the per-cycle market view. It is never mutated after construction.
type Snapshot struct {
	at     time.Time
	mids   map[string]float64
	perps  map[string]map[string]PerpContext
	spot   *SpotMeta
	failed []string
}

// NewSnapshot copies its inputs; perps is keyed by dex then universe name.
func NewSnapshot(at time.Time, mids map[string]float64, perps map[string]map[string]PerpContext, spot *SpotMeta) *Snapshot {
	s := &Snapshot{
		at:    at,
		mids:  make(map[string]float64, len(mids)),
		perps: make(map[string]map[string]PerpContext, len(perps)),
		spot:  spot,
	}
	for k, v := range mids {
		s.mids[k] = v
	}
	for dex, ctxs := range perps {
		cp := make(map[string]PerpContext, len(ctxs))
		for k, v := range ctxs {
			cp[k] = v
		}
		s.perps[dex] = cp
	}
	return s
}

func (s *Snapshot) At() time.Time { return s.at }

func (s *Snapshot) Mid(coin string) (float64, bool) {
	px, ok := s.mids[coin]
	return px, ok
}

// PerpContext looks up ref's dex contexts under the namespaced then the bare name.
func (s *Snapshot) PerpContext(ref AssetRef) (PerpContext, bool) {
	ctxs, ok := s.perps[ref.Namespace()]
	if !ok {
		return PerpContext{}, false
	}
	if ctx, ok := ctxs[ref.Coin()]; ok {
		return ctx, true
	}
	ctx, ok := ctxs[ref.Symbol()]
	return ctx, ok
}

func (s *Snapshot) SpotPair(index int) (SpotPair, bool) {
	if s.spot == nil {
		return SpotPair{}, false
	}
	pair, ok := s.spot.Pairs[index]
	return pair, ok
}

func (s *Snapshot) SpotMeta() *SpotMeta { return s.spot }

// Failed lists the data sources that could not be fetched for this snapshot.
func (s *Snapshot) Failed() []string {
	return append([]string(nil), s.failed...)
}

type View struct {
	info   InfoClient
	meta   *MetaCache
	quotes *QuoteResolver
	ws     *ws.Client
	chain  PriceChain
	dexes  []string
	log    *zap.Logger

	maxMidAge time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	wsMids map[string]float64
	wsAt   time.Time
}

type ViewOptions struct {
	Dexes         []string
	MetaTTL       time.Duration
	QuoteCacheTTL time.Duration
	// MaxMidAge bounds how stale streamed mids may be; 0 disables streamed mids.
	MaxMidAge time.Duration
}

func NewView(info InfoClient, wsClient *ws.Client, opts ViewOptions, log *zap.Logger) *View {
	if log == nil {
		log = zap.NewNop()
	}
	meta := NewMetaCache(info, opts.MetaTTL, log)
	return &View{
		info:      info,
		meta:      meta,
		quotes:    NewQuoteResolver(meta, opts.QuoteCacheTTL, log),
		ws:        wsClient,
		chain:     DefaultPriceChain(),
		dexes:     append([]string(nil), opts.Dexes...),
		log:       log,
		maxMidAge: opts.MaxMidAge,
		now:       time.Now,
	}
}

func (v *View) Meta() *MetaCache { return v.meta }

// Start subscribes to streamed mids when a ws client is configured.
func (v *View) Start(ctx context.Context) error {
	if v.ws == nil || v.maxMidAge <= 0 {
		return nil
	}
	if err := v.ws.Connect(ctx); err != nil {
		return err
	}
	if err := v.ws.Subscribe(ctx, ws.AllMids("")); err != nil {
		return err
	}
	go func() {
		_ = v.ws.Run(ctx, v.handleMessage)
	}()
	return nil
}

func (v *View) handleMessage(channel string, data json.RawMessage) {
	if channel != "allMids" {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		v.log.Debug("allMids decode error", zap.Error(err))
		return
	}
	mids := parseMids(payload)
	if len(mids) == 0 {
		return
	}
	v.mu.Lock()
	if v.wsMids == nil {
		v.wsMids = make(map[string]float64, len(mids))
	}
	for coin, px := range mids {
		v.wsMids[coin] = px
	}
	v.wsAt = v.now()
	v.mu.Unlock()
}

func (v *View) streamedMids() (map[string]float64, bool) {
	if v.maxMidAge <= 0 {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.wsAt.IsZero() || v.now().Sub(v.wsAt) > v.maxMidAge {
		return nil, false
	}
	out := make(map[string]float64, len(v.wsMids))
	for k, px := range v.wsMids {
		out[k] = px
	}
	return out, true
}

// Snapshot fetches mids, spot metadata and every dex's asset contexts. Each
// source fails independently; failures are logged and listed in Failed.
func (v *View) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		at:    v.now(),
		perps: make(map[string]map[string]PerpContext),
	}
	if mids, ok := v.streamedMids(); ok {
		snap.mids = mids
	} else if payload, err := v.info.AllMids(ctx); err != nil {
		v.log.Warn("allMids fetch failed", zap.Error(err))
		snap.failed = append(snap.failed, "allMids")
		snap.mids = map[string]float64{}
	} else {
		snap.mids = parseMids(payload)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spot, err := v.meta.SpotMeta(ctx)
	if err != nil {
		v.log.Warn("spot meta fetch failed", zap.Error(err))
		snap.failed = append(snap.failed, "spotMeta")
	} else {
		snap.spot = spot
	}

	for _, dex := range append([]string{""}, v.dexes...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, ctxs, err := v.meta.FetchPerp(ctx, dex)
		if err != nil {
			v.log.Warn("asset contexts fetch failed", zap.String("dex", dexLabel(dex)), zap.Error(err))
			snap.failed = append(snap.failed, "metaAndAssetCtxs:"+dexLabel(dex))
			continue
		}
		snap.perps[dex] = ctxs
	}
	return snap, nil
}

// Price resolves q through the price chain. Derived prices are logged at warn.
func (v *View) Price(q PriceQuery) (float64, string, bool) {
	px, source, ok := v.chain.Resolve(q)
	if ok && source == SourcePnLDerived {
		v.log.Warn("using pnl derived mark price",
			zap.String("asset", q.Ref.Coin()),
			zap.Float64("price", px),
		)
	}
	return px, source, ok
}

func (v *View) Quote(ctx context.Context, ref AssetRef) string {
	return v.quotes.Resolve(ctx, ref)
}

func dexLabel(dex string) string {
	if dex == "" {
		return "main"
	}
	return dex
}
