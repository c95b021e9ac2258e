package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydro_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the batch drivers.
type Metrics struct {
	DaysProcessed     prometheus.Counter
	DaysFailed        *prometheus.CounterVec // labels: reason={missing_sample,layout,source,other}
	UnitsProcessed    prometheus.Counter
	UnitDuration      prometheus.Histogram
	RunRunning        prometheus.Gauge
	ProductsPublished *prometheus.CounterVec // labels: kind={daily_aggregate,return_periods}, outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DaysProcessed,
		m.DaysFailed,
		m.UnitsProcessed,
		m.UnitDuration,
		m.RunRunning,
		m.ProductsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so it can be
// called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DaysProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_processed_total",
			Help:      "Daily aggregates written.",
		}),
		DaysFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_failed_total",
			Help:      "Dates that produced no daily aggregate, by reason.",
		}, []string{"reason"}),
		UnitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_processed_total",
			Help:      "Spatial units with return periods written.",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to read, reduce and estimate one spatial unit.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RunRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_running",
			Help:      "1 while a batch run is active, 0 otherwise.",
		}),
		ProductsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_published_total",
			Help:      "Product notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
}
