package metric

import (
	"time"

	"github.com/hupe1980/sigtree"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes all metric names.
const Namespace = "sigtree"

// PrometheusCollector implements sigtree.MetricsCollector.
type PrometheusCollector struct {
	stageLatency  *prometheus.HistogramVec
	stageItems    *prometheus.CounterVec
	insertedItems prometheus.Counter
	insertLatency prometheus.Histogram
	checks        *prometheus.CounterVec
	checkLatency  prometheus.Histogram
	queries       *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
}

var _ sigtree.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of build stages",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "status"}),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stage_items_total",
			Help:      "Entities processed by build stages",
		}, []string{"stage"}),
		insertedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inserted_items_total",
			Help:      "Items inserted into the tree",
		}),
		insertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cell_insert_duration_seconds",
			Help:      "Time to compute signatures and insert the items of one cell",
			Buckets:   prometheus.DefBuckets,
		}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "consistency_checks_total",
			Help:      "Tree consistency checks",
		}, []string{"status"}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "consistency_check_duration_seconds",
			Help:      "Duration of tree consistency checks",
			Buckets:   prometheus.DefBuckets,
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validation_queries_total",
			Help:      "Validation queries by check and outcome",
		}, []string{"check", "status"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "validation_query_duration_seconds",
			Help:      "Duration of validation queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),
	}

	reg.MustRegister(
		c.stageLatency,
		c.stageItems,
		c.insertedItems,
		c.insertLatency,
		c.checks,
		c.checkLatency,
		c.queries,
		c.queryLatency,
	)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordStage implements sigtree.MetricsCollector.
func (c *PrometheusCollector) RecordStage(stage string, count int, d time.Duration, err error) {
	c.stageLatency.WithLabelValues(stage, status(err)).Observe(d.Seconds())
	c.stageItems.WithLabelValues(stage).Add(float64(count))
}

// RecordInsert implements sigtree.MetricsCollector.
func (c *PrometheusCollector) RecordInsert(items int, d time.Duration) {
	c.insertedItems.Add(float64(items))
	c.insertLatency.Observe(d.Seconds())
}

// RecordConsistencyCheck implements sigtree.MetricsCollector.
func (c *PrometheusCollector) RecordConsistencyCheck(d time.Duration, err error) {
	c.checks.WithLabelValues(status(err)).Inc()
	c.checkLatency.Observe(d.Seconds())
}

// RecordQuery implements sigtree.MetricsCollector.
func (c *PrometheusCollector) RecordQuery(check string, mismatch bool, d time.Duration) {
	s := "match"
	if mismatch {
		s = "mismatch"
	}
	c.queries.WithLabelValues(check, s).Inc()
	c.queryLatency.WithLabelValues(check).Observe(d.Seconds())
}
