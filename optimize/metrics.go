package optimize

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rustyeddy/backtester/strategies"
)

// Collector exports optimizer throughput. A nil *Collector is valid and
// records nothing.
type Collector struct {
	combinations *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewCollector creates the optimizer metrics and registers them with reg
// when it is not nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		combinations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtester",
			Subsystem: "optimize",
			Name:      "combinations_total",
			Help:      "Parameter combinations evaluated.",
		}, []string{"strategy"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "backtester",
			Subsystem: "optimize",
			Name:      "failures_total",
			Help:      "Parameter combinations that produced no result.",
		}, []string{"strategy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "backtester",
			Subsystem: "optimize",
			Name:      "combination_duration_seconds",
			Help:      "Time to generate signals and backtest one combination.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"strategy"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, m := range []prometheus.Collector{c.combinations, c.failures, c.duration} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) observe(id strategies.ID, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	label := string(id)
	c.combinations.WithLabelValues(label).Inc()
	if !ok {
		c.failures.WithLabelValues(label).Inc()
	}
	c.duration.WithLabelValues(label).Observe(d.Seconds())
}
