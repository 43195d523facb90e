package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const maxWireDecimals = 8

// LimitOrderWire builds the wire form of a limit order. size and limit must
// already be quantized; values needing more than 8 decimals are rejected.
func LimitOrderWire(asset int, isBuy bool, size, limit decimal.Decimal, reduceOnly bool, tif Tif, cloid string) (OrderWire, error) {
	if tif == "" {
		return OrderWire{}, errors.New("tif is required")
	}
	if !limit.IsPositive() {
		return OrderWire{}, fmt.Errorf("limit price must be > 0, got %s", limit)
	}
	if !size.IsPositive() {
		return OrderWire{}, fmt.Errorf("size must be > 0, got %s", size)
	}
	price, err := decimalToWire(limit)
	if err != nil {
		return OrderWire{}, fmt.Errorf("limit price: %w", err)
	}
	sizeWire, err := decimalToWire(size)
	if err != nil {
		return OrderWire{}, fmt.Errorf("size: %w", err)
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      price,
		Size:       sizeWire,
		ReduceOnly: reduceOnly,
		OrderType:  OrderTypeWire{Limit: &LimitOrderType{Tif: tif}},
		Cloid:      cloid,
	}, nil
}

func decimalToWire(d decimal.Decimal) (string, error) {
	if !d.Round(maxWireDecimals).Equal(d) {
		return "", fmt.Errorf("%s needs more than %d decimals", d, maxWireDecimals)
	}
	if d.IsZero() {
		return "0", nil
	}
	return d.String(), nil
}
