package account

import (
	"sort"

	"hl-rebalancer/internal/market"
)

// Position is one open perp position. Asset is the bare symbol, Coin the name
// the exchange reported (e.g. "xyz:TSLA").
type Position struct {
	Namespace     string
	Asset         string
	Coin          string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	HasMark       bool
	UnrealizedPnL float64
	HasPnL        bool
	PositionValue float64
}

func (p Position) PriceInfo() *market.PositionPrice {
	return &market.PositionPrice{
		Size:          p.Size,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		HasMark:       p.HasMark,
		UnrealizedPnL: p.UnrealizedPnL,
	}
}

type positionKey struct {
	namespace string
	asset     string
}

// Snapshot is one user's holdings for a single cycle.
type Snapshot struct {
	user         string
	balances     map[string]float64
	withdrawable float64
	byAsset      map[positionKey]Position
	byCoin       map[positionKey]Position
	order        []positionKey
	failed       []string
}

func newSnapshot(user string) *Snapshot {
	return &Snapshot{
		user:     user,
		balances: make(map[string]float64),
		byAsset:  make(map[positionKey]Position),
		byCoin:   make(map[positionKey]Position),
	}
}

// NewSnapshot builds a snapshot from already-parsed data.
func NewSnapshot(user string, balances map[string]float64, positions []Position) *Snapshot {
	snap := newSnapshot(user)
	for token, amount := range balances {
		snap.balances[token] = amount
	}
	for _, pos := range positions {
		snap.add(pos)
	}
	return snap
}

func (s *Snapshot) add(pos Position) {
	if pos.Coin == "" {
		pos.Coin = pos.Asset
	}
	key := positionKey{namespace: pos.Namespace, asset: pos.Asset}
	if _, exists := s.byAsset[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byAsset[key] = pos
	s.byCoin[positionKey{namespace: pos.Namespace, asset: pos.Coin}] = pos
}

// Balance returns the spot total for token; USDC includes perp withdrawable.
func (s *Snapshot) Balance(token string) float64 {
	return s.balances[token]
}

func (s *Snapshot) Balances() map[string]float64 {
	out := make(map[string]float64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

func (s *Snapshot) Withdrawable() float64 { return s.withdrawable }

func (s *Snapshot) Failed() []string {
	return append([]string(nil), s.failed...)
}

// Positions returns open positions ordered by namespace then asset.
func (s *Snapshot) Positions() []Position {
	keys := append([]positionKey(nil), s.order...)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].namespace != keys[j].namespace {
			return keys[i].namespace < keys[j].namespace
		}
		return keys[i].asset < keys[j].asset
	})
	out := make([]Position, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.byAsset[key])
	}
	return out
}

// Lookup matches a configured perp to a live position. It tries the configured
// namespace then the main market, each with the bare symbol and then the full
// identifier, and finally any namespace holding the bare symbol.
func (s *Snapshot) Lookup(namespace, identifier string) (Position, bool) {
	_, bare := market.SplitNamespace(identifier)
	candidates := []struct {
		index map[positionKey]Position
		key   positionKey
	}{
		{s.byAsset, positionKey{namespace, bare}},
		{s.byCoin, positionKey{namespace, identifier}},
		{s.byAsset, positionKey{"", bare}},
		{s.byCoin, positionKey{"", identifier}},
	}
	for _, c := range candidates {
		if pos, ok := c.index[c.key]; ok {
			return pos, true
		}
	}
	for _, pos := range s.Positions() {
		if pos.Asset == bare {
			return pos, true
		}
	}
	return Position{}, false
}
