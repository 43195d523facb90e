package exec

import (
	"context"
	"errors"
	"fmt"

	"hl-rebalancer/internal/hl/exchange"
	"hl-rebalancer/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderRequest struct {
	Ref            market.AssetRef
	IsBuy          bool
	Size           float64
	ReferencePrice float64
	// Precision is the locally configured grid, used when the exchange
	// metadata cannot be fetched.
	Precision    Precision
	HasPrecision bool
}

type Result struct {
	Success bool
	Message string
	OrderID string
	DryRun  bool
	Size    decimal.Decimal
	Price   decimal.Decimal
	Filled  bool
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order exchange.OrderWire) (exchange.OrderStatus, error)
}

type AssetResolver interface {
	AssetInfo(ctx context.Context, ref market.AssetRef) (market.AssetInfo, error)
}

// Executor turns a sized request into an IOC limit order. Dry-run runs the
// same steps and stops before the POST.
type Executor struct {
	placer OrderPlacer
	assets AssetResolver
	dryRun bool
	log    *zap.Logger
}

func New(placer OrderPlacer, assets AssetResolver, dryRun bool, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{placer: placer, assets: assets, dryRun: dryRun || placer == nil, log: log}
}

func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Submit never returns an error: every failure, including transport errors,
// is reported through Result.
func (e *Executor) Submit(ctx context.Context, req OrderRequest) Result {
	res := Result{DryRun: e.dryRun}
	if req.Ref.IsZero() {
		res.Message = "missing asset reference"
		return res
	}
	prec, assetID, haveID, err := e.precision(ctx, req)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	if !(req.ReferencePrice > 0) {
		res.Message = fmt.Sprintf("invalid reference price %v", req.ReferencePrice)
		return res
	}
	size, price := Quantize(req.IsBuy, req.Size, req.ReferencePrice, prec)
	res.Size, res.Price = size, price
	if !size.IsPositive() {
		res.Message = fmt.Sprintf("size %v rounds to zero at %d decimals", req.Size, prec.SzDecimals)
		return res
	}
	if !price.IsPositive() {
		res.Message = fmt.Sprintf("price %v quantizes to %s", req.ReferencePrice, price)
		return res
	}
	wire, err := exchange.LimitOrderWire(assetID, req.IsBuy, size, price, false, exchange.TifIoc, "")
	if err != nil {
		res.Message = fmt.Sprintf("build order: %v", err)
		return res
	}
	side := sideLabel(req.IsBuy)
	if e.dryRun {
		res.Success = true
		res.Message = fmt.Sprintf("dry run: %s %s %s @ %s", side, size, req.Ref.Coin(), price)
		if !haveID {
			res.Message += " (asset id unresolved)"
		}
		return res
	}
	if !haveID {
		res.Message = "asset id unresolved"
		return res
	}
	status, err := e.placer.PlaceOrder(ctx, wire)
	if err != nil {
		var orderErr *exchange.OrderError
		if errors.As(err, &orderErr) {
			res.Message = orderErr.Message
		} else {
			res.Message = fmt.Sprintf("submit failed: %v", err)
		}
		e.log.Error("order failed",
			zap.String("asset", req.Ref.Coin()),
			zap.String("side", side),
			zap.String("size", size.String()),
			zap.String("price", price.String()),
			zap.Error(err),
		)
		return res
	}
	res.Success = true
	res.OrderID = status.OrderID
	res.Filled = status.Filled
	switch {
	case status.Filled:
		res.Message = fmt.Sprintf("filled %v @ %v (oid %s)", status.TotalSz, status.AvgPx, status.OrderID)
	case status.Resting:
		res.Message = fmt.Sprintf("resting (oid %s)", status.OrderID)
	default:
		res.Message = "accepted"
	}
	e.log.Info("order placed",
		zap.String("asset", req.Ref.Coin()),
		zap.String("side", side),
		zap.String("size", size.String()),
		zap.String("price", price.String()),
		zap.String("order_id", status.OrderID),
	)
	return res
}

// precision prefers the exchange metadata over the configured values. A dry
// run may continue on configured precision alone; a live order needs the id.
func (e *Executor) precision(ctx context.Context, req OrderRequest) (Precision, int, bool, error) {
	if e.assets != nil {
		info, err := e.assets.AssetInfo(ctx, req.Ref)
		if err == nil {
			return Precision{SzDecimals: info.SzDecimals, PxDecimals: info.PxDecimals, HasTick: true}, info.ID, true, nil
		}
		e.log.Warn("asset metadata unavailable, using configured precision",
			zap.String("asset", req.Ref.Coin()),
			zap.Error(err),
		)
	}
	if !req.HasPrecision {
		return Precision{}, 0, false, errors.New("precision metadata unavailable")
	}
	return req.Precision, 0, false, nil
}

func sideLabel(isBuy bool) string {
	if isBuy {
		return "BUY"
	}
	return "SELL"
}
