package batch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkvm",
			Subsystem: "batch",
			Name:      "rows_total",
			Help:      "Total number of CSV rows processed by result",
		},
		[]string{"result"},
	)

	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bulkvm",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)
)

func init() {
	prometheus.MustRegister(rowsTotal, batchDuration)
}

// recordRowMetric records one processed row.
func recordRowMetric(success bool) {
	if success {
		rowsTotal.WithLabelValues("success").Inc()
	} else {
		rowsTotal.WithLabelValues("failure").Inc()
	}
}

// recordBatchMetric records a finished batch.
func recordBatchMetric(seconds float64) {
	batchDuration.Observe(seconds)
}
