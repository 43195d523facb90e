package app

import (
	"hl-rebalancer/internal/config"
	"hl-rebalancer/internal/exec"
	"hl-rebalancer/internal/timescale"
)

func (c *Cycle) record(line AssetReport) {
	if c.deps.Timescale == nil || line.Outcome == OutcomeDisabled {
		return
	}
	c.deps.Timescale.EnqueueValuation(timescale.Valuation{
		Time:         c.now().UTC(),
		Wallet:       c.wallet.ID,
		Asset:        line.Identifier,
		Kind:         line.Kind.String(),
		Quote:        line.Quote,
		Price:        line.Price,
		PriceSource:  line.PriceSource,
		Quantity:     line.Quantity,
		ValueUSD:     line.ValueUSD,
		TargetUSD:    line.TargetUSD,
		DeviationPct: line.DeviationPct,
		Decision:     string(line.Decision),
		Outcome:      string(line.Outcome),
	})
}

func (c *Cycle) recordOrder(target config.Target, line AssetReport, res exec.Result, refPrice float64) {
	if c.deps.Timescale == nil {
		return
	}
	c.deps.Timescale.EnqueueOrder(timescale.Order{
		Time:     c.now().UTC(),
		Wallet:   c.wallet.ID,
		Asset:    target.Identifier,
		Side:     string(line.Decision),
		Size:     res.Size.String(),
		Price:    res.Price.String(),
		RefPrice: refPrice,
		DryRun:   res.DryRun,
		Success:  res.Success,
		OrderID:  res.OrderID,
		Message:  res.Message,
	})
}
