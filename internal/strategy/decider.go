package strategy

type DecisionInput struct {
	CurrentUSD       float64
	TargetUSD        float64
	BuyThresholdPct  float64
	SellThresholdPct float64
	BuyEnabled       bool
	SellEnabled      bool
}

// Triggers returns the values at or below which a buy fires and at or above
// which a sell fires.
func Triggers(target, buyPct, sellPct float64) (buy, sell float64) {
	return target * (1 - buyPct/100), target * (1 + sellPct/100)
}

// Decide compares current value against the target band. Buy wins ties and a
// non-positive target always holds.
func Decide(in DecisionInput) Action {
	if in.TargetUSD <= 0 {
		return ActionHold
	}
	buyTrigger, sellTrigger := Triggers(in.TargetUSD, in.BuyThresholdPct, in.SellThresholdPct)
	if in.BuyEnabled && in.CurrentUSD <= buyTrigger {
		return ActionBuy
	}
	if in.SellEnabled && in.CurrentUSD >= sellTrigger {
		return ActionSell
	}
	return ActionHold
}

// Deviation is the signed percentage of current away from target, 0 when the
// target is not positive.
func Deviation(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return (current - target) / target * 100
}
