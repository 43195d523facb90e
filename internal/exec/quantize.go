package exec

import "github.com/shopspring/decimal"

const sigFigs = 5

var (
	buyBuffer  = decimal.RequireFromString("1.01")
	sellBuffer = decimal.RequireFromString("0.99")
)

// Precision is the size and price grid of one asset. Without a tick the
// price falls back to five significant figures.
type Precision struct {
	SzDecimals int
	PxDecimals int
	HasTick    bool
}

// Tick returns the price increment, zero when no tick is known.
func (p Precision) Tick() decimal.Decimal {
	if !p.HasTick {
		return decimal.Zero
	}
	return decimal.New(1, -int32(p.PxDecimals))
}

// Quantize rounds size to the asset's size decimals and applies the
// directional buffer to price before snapping it to the grid. The buffer must
// come first: snapping and then buffering leaves the price off-grid.
func Quantize(isBuy bool, size, price float64, p Precision) (decimal.Decimal, decimal.Decimal) {
	sz := RoundSize(decimal.NewFromFloat(size), p)
	px := decimal.NewFromFloat(price)
	if !px.IsPositive() {
		return sz, px
	}
	if isBuy {
		px = px.Mul(buyBuffer)
	} else {
		px = px.Mul(sellBuffer)
	}
	return sz, SnapPrice(px, p)
}

// Snap quantizes an already-buffered pair. Applying it twice is a no-op.
func Snap(size, price decimal.Decimal, p Precision) (decimal.Decimal, decimal.Decimal) {
	return RoundSize(size, p), SnapPrice(price, p)
}

func RoundSize(size decimal.Decimal, p Precision) decimal.Decimal {
	return size.Round(int32(p.SzDecimals))
}

// SnapPrice moves price to the nearest tick multiple, or to five significant
// figures when there is no tick. Non-positive prices are returned unchanged.
func SnapPrice(price decimal.Decimal, p Precision) decimal.Decimal {
	if !price.IsPositive() {
		return price
	}
	if p.HasTick {
		return price.Round(int32(p.PxDecimals))
	}
	return roundSigFigs(price, sigFigs)
}

func roundSigFigs(d decimal.Decimal, figs int) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	intDigits := d.NumDigits() + int(d.Exponent())
	return d.Round(int32(figs - intDigits))
}
