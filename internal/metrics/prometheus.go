package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_rebalancer"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promLabeled struct {
	vec *prometheus.CounterVec
}

func (p promLabeled) Inc(label string) {
	p.vec.WithLabelValues(label).Inc()
}

type promAssetGauge struct {
	vec *prometheus.GaugeVec
}

func (p promAssetGauge) Set(asset string, value float64) {
	p.vec.WithLabelValues(asset).Set(value)
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	ordersPlaced   prometheus.Counter
	ordersFailed   prometheus.Counter
	sellsBlocked   prometheus.Counter
	cyclesRun      prometheus.Counter
	assetsSkipped  *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	deviation      *prometheus.GaugeVec
	cycleDuration  prometheus.Histogram
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders accepted by the exchange or simulated.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of order submissions that failed.",
	})
	sellsBlocked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sells_blocked_total",
		Help:      "Total number of perp sells blocked by negative unrealized PnL.",
	})
	cyclesRun := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "cycles_total",
		Help:      "Total number of wallet cycles run.",
	})
	assetsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "assets_skipped_total",
		Help:      "Assets skipped during a cycle, by reason.",
	}, []string{"reason"})
	sourceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "source_failures_total",
		Help:      "Market or account data sources that failed during a refresh.",
	}, []string{"source"})
	deviation := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "deviation_pct",
		Help:      "Last observed deviation from target, in percent.",
	}, []string{"asset"})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: promNamespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one wallet cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	registry.MustRegister(ordersPlaced, ordersFailed, sellsBlocked, cyclesRun, assetsSkipped, sourceFailures, deviation, cycleDuration)

	m := &Metrics{
		OrdersPlaced:   promCounter{ordersPlaced},
		OrdersFailed:   promCounter{ordersFailed},
		SellsBlocked:   promCounter{sellsBlocked},
		CyclesRun:      promCounter{cyclesRun},
		AssetsSkipped:  promLabeled{assetsSkipped},
		SourceFailures: promLabeled{sourceFailures},
		Deviation:      promAssetGauge{deviation},
		CycleDuration:  cycleDuration,
	}

	return &Prometheus{
		Metrics:        m,
		registry:       registry,
		ordersPlaced:   ordersPlaced,
		ordersFailed:   ordersFailed,
		sellsBlocked:   sellsBlocked,
		cyclesRun:      cyclesRun,
		assetsSkipped:  assetsSkipped,
		sourceFailures: sourceFailures,
		deviation:      deviation,
		cycleDuration:  cycleDuration,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
