package metrics

type Counter interface {
	Inc()
}

// LabeledCounter counts per label value, e.g. a skip reason.
type LabeledCounter interface {
	Inc(label string)
}

// AssetGauge holds one value per asset.
type AssetGauge interface {
	Set(asset string, value float64)
}

type Observer interface {
	Observe(value float64)
}

type Metrics struct {
	OrdersPlaced   Counter
	OrdersFailed   Counter
	SellsBlocked   Counter
	CyclesRun      Counter
	AssetsSkipped  LabeledCounter
	SourceFailures LabeledCounter
	Deviation      AssetGauge
	CycleDuration  Observer
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopLabeled struct{}

func (noopLabeled) Inc(string) {}

type noopGauge struct{}

func (noopGauge) Set(string, float64) {}

type noopObserver struct{}

func (noopObserver) Observe(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:   n,
		OrdersFailed:   n,
		SellsBlocked:   n,
		CyclesRun:      n,
		AssetsSkipped:  noopLabeled{},
		SourceFailures: noopLabeled{},
		Deviation:      noopGauge{},
		CycleDuration:  noopObserver{},
	}
}
