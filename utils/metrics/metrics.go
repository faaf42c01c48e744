package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric exported by the bot
const Namespace = "flasharb"

// Rejection reasons recorded by StrategyMetrics.Rejected
const (
	ReasonSlippage  = "slippage"
	ReasonMinProfit = "min_profit"
	ReasonMinBps    = "min_profit_bps"
	ReasonSizing    = "sizing"
	ReasonBuild     = "build"
)

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type PricingMetrics struct {
	PoolReads    prometheus.Counter
	ReadFailures *prometheus.CounterVec
	CircuitOpen  prometheus.Counter
	MissingPools prometheus.Counter
	Quotes       prometheus.Counter
	ReadLatency  prometheus.Histogram
}

// NewPricingMetrics registers pricing metrics on reg. A nil reg leaves them unregistered.
func NewPricingMetrics(reg prometheus.Registerer, namespace string) *PricingMetrics {
	factory := promauto.With(reg)
	return &PricingMetrics{
		PoolReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "pool_reads_total",
			Help:      "Total number of pool state reads attempted",
		}),
		ReadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "read_failures_total",
			Help:      "Pool reads that failed, by venue",
		}, []string{"venue"}),
		CircuitOpen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "circuit_open_total",
			Help:      "Pool reads refused by the open RPC circuit breaker",
		}),
		MissingPools: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "missing_pools_total",
			Help:      "Venue/fee-tier combinations without a deployed pool",
		}),
		Quotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "quotes_total",
			Help:      "Total number of pool quotes produced",
		}),
		ReadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "read_latency_seconds",
			Help:      "Latency of a full pool state read",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
}

type StrategyMetrics struct {
	Opportunities prometheus.Counter
	Viable        prometheus.Counter
	Rejected      *prometheus.CounterVec
	BestGross     prometheus.Gauge
	NetProfitUSD  prometheus.Histogram
}

func NewStrategyMetrics(reg prometheus.Registerer, namespace string) *StrategyMetrics {
	factory := promauto.With(reg)
	return &StrategyMetrics{
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "opportunities_total",
			Help:      "Opportunities with positive gross profit",
		}),
		Viable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "viable_total",
			Help:      "Opportunities that passed every cost check",
		}),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "rejected_total",
			Help:      "Opportunities rejected, by first failing check",
		}, []string{"reason"}),
		BestGross: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "best_gross_profit_percent",
			Help:      "Highest gross profit percentage seen in the last cycle",
		}),
		NetProfitUSD: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "net_profit_usd",
			Help:      "Modeled net profit after gas of viable candidates",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

type CycleMetrics struct {
	Cycles   prometheus.Counter
	Failures prometheus.Counter
	Duration prometheus.Histogram
	GasPrice prometheus.Gauge
}

func NewCycleMetrics(reg prometheus.Registerer, namespace string) *CycleMetrics {
	factory := promauto.With(reg)
	return &CycleMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "cycles_total",
			Help:      "Completed polling cycles",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "cycle_failures_total",
			Help:      "Polling cycles aborted by a fatal error",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a polling cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		GasPrice: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "gas_price_gwei",
			Help:      "Gas price used by the cost model",
		}),
	}
}
