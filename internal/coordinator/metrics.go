package coordinator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var metricsOnce sync.Once

var (
	pollsTotal    *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	reauthTotal   prometheus.Counter
	netWorthUnits prometheus.Gauge
	accountsGauge prometheus.Gauge
	snapshotAge   prometheus.GaugeFunc
)

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return c
}

func (c *Coordinator) initMetrics() {
	metricsOnce.Do(func() {
		pollsTotal = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "polls_total",
			Help:      "Total number of Monarch poll attempts.",
		}, []string{"result", "trigger"}))

		pollDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "poll_duration_seconds",
			Help:      "Duration of Monarch poll attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}))

		reauthTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "reauth_total",
			Help:      "Times an expired session forced a fresh login.",
		})
		prometheus.Register(reauthTotal)

		netWorthUnits = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "net_worth_units",
			Help:      "Net worth from the latest snapshot, in whole currency units.",
		})
		prometheus.Register(netWorthUnits)

		accountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "accounts",
			Help:      "Account count in the latest snapshot.",
		})
		prometheus.Register(accountsGauge)

		snapshotAge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "monarch",
			Subsystem: "coordinator",
			Name:      "snapshot_age_seconds",
			Help:      "Age of the latest snapshot.",
		}, func() float64 {
			snap, ok := c.Snapshot()
			if !ok {
				return -1
			}
			return time.Since(snap.FetchedAt).Seconds()
		})
		prometheus.Register(snapshotAge)
	})
}

func recordPoll(trigger string, err error, duration time.Duration) {
	if pollsTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	pollsTotal.WithLabelValues(result, trigger).Inc()
	pollDuration.WithLabelValues(result).Observe(duration.Seconds())
}
