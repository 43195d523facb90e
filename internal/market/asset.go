package market

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindSpot Kind = iota + 1
	KindPerp
)

func (k Kind) String() string {
	switch k {
	case KindSpot:
		return "spot"
	case KindPerp:
		return "perp"
	default:
		return "unknown"
	}
}

// AssetRef identifies a tradable asset: either a spot pair by index or a perp
// by namespace and bare symbol. The main perp market has namespace "".
type AssetRef struct {
	kind      Kind
	pairIndex int
	namespace string
	symbol    string
}

// SpotRef builds a spot reference. token is the base token name used for
// balance lookups and may be empty.
func SpotRef(pairIndex int, token string) AssetRef {
	return AssetRef{kind: KindSpot, pairIndex: pairIndex, symbol: strings.TrimSpace(token)}
}

func PerpRef(namespace, symbol string) AssetRef {
	return AssetRef{kind: KindPerp, namespace: strings.TrimSpace(namespace), symbol: strings.TrimSpace(symbol)}
}

// PerpFromIdentifier accepts "ns:SYM" or a bare symbol. A namespace embedded in
// the identifier wins over dex.
func PerpFromIdentifier(identifier, dex string) AssetRef {
	ns, sym := SplitNamespace(identifier)
	if ns == "" {
		ns = dex
	}
	return PerpRef(ns, sym)
}

// ParseAssetRef parses "@N" as spot pair N, "ns:SYM" as a namespaced perp and
// anything else as a main market perp.
func ParseAssetRef(identifier string) (AssetRef, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return AssetRef{}, fmt.Errorf("empty asset identifier")
	}
	if strings.HasPrefix(identifier, "@") {
		idx, err := strconv.Atoi(identifier[1:])
		if err != nil || idx < 0 {
			return AssetRef{}, fmt.Errorf("invalid spot identifier %q", identifier)
		}
		return SpotRef(idx, ""), nil
	}
	ref := PerpFromIdentifier(identifier, "")
	if ref.symbol == "" {
		return AssetRef{}, fmt.Errorf("invalid perp identifier %q", identifier)
	}
	return ref, nil
}

// SplitNamespace splits "ns:SYM" into its parts; bare symbols return "".
func SplitNamespace(identifier string) (string, string) {
	identifier = strings.TrimSpace(identifier)
	if ns, sym, ok := strings.Cut(identifier, ":"); ok {
		return strings.TrimSpace(ns), strings.TrimSpace(sym)
	}
	return "", identifier
}

func (r AssetRef) Kind() Kind        { return r.kind }
func (r AssetRef) IsSpot() bool      { return r.kind == KindSpot }
func (r AssetRef) IsPerp() bool      { return r.kind == KindPerp }
func (r AssetRef) PairIndex() int    { return r.pairIndex }
func (r AssetRef) Namespace() string { return r.namespace }
func (r AssetRef) Symbol() string    { return r.symbol }
func (r AssetRef) IsZero() bool      { return r.kind == 0 }

// Coin is the exchange-side name: "@N" for spot pairs, "ns:SYM" or "SYM" for perps.
func (r AssetRef) Coin() string {
	switch r.kind {
	case KindSpot:
		return "@" + strconv.Itoa(r.pairIndex)
	case KindPerp:
		if r.namespace == "" {
			return r.symbol
		}
		return r.namespace + ":" + r.symbol
	default:
		return ""
	}
}

func (r AssetRef) String() string {
	if r.kind == KindSpot && r.symbol != "" {
		return r.symbol + " (" + r.Coin() + ")"
	}
	return r.Coin()
}
