package provision

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkvm",
			Subsystem: "provision",
			Name:      "records_total",
			Help:      "Total number of provisioned records by result",
		},
		[]string{"result"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulkvm",
			Subsystem: "provision",
			Name:      "step_duration_seconds",
			Help:      "Duration of provisioning steps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"step"},
	)

	stepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkvm",
			Subsystem: "provision",
			Name:      "step_failures_total",
			Help:      "Total number of failed provisioning steps by step and error kind",
		},
		[]string{"step", "kind"},
	)

	compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulkvm",
			Subsystem: "provision",
			Name:      "compensations_total",
			Help:      "Total number of compensating deletes by object and result",
		},
		[]string{"object", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		recordsTotal,
		stepDuration,
		stepFailuresTotal,
		compensationsTotal,
	)
}

// recordStepMetric records the duration and outcome of one step.
func recordStepMetric(step Step, kind string, seconds float64) {
	stepDuration.WithLabelValues(string(step)).Observe(seconds)
	if kind != "" {
		stepFailuresTotal.WithLabelValues(string(step), kind).Inc()
	}
}

// recordRecordMetric records a finished record.
func recordRecordMetric(success bool) {
	if success {
		recordsTotal.WithLabelValues("success").Inc()
	} else {
		recordsTotal.WithLabelValues("failure").Inc()
	}
}

// recordCompensationMetric records one compensating delete.
func recordCompensationMetric(object string, err error) {
	if err != nil {
		compensationsTotal.WithLabelValues(object, "error").Inc()
	} else {
		compensationsTotal.WithLabelValues(object, "success").Inc()
	}
}
