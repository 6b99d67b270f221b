package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

func PrometheusMetrics() map[MetricTag]prometheus.Collector {
	metrics := make(map[MetricTag]prometheus.Collector)

	for tag, summaryVec := range SummaryVecMetrics {
		metrics[tag] = summaryVec
	}

	for tag, counter := range CounterMetrics {
		metrics[tag] = counter
	}

	for tag, counterVec := range CounterVecMetrics {
		metrics[tag] = counterVec
	}

	return metrics
}

var SummaryVecMetrics = map[MetricTag]*prometheus.SummaryVec{
	HttpRequestDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "gridbroker", Subsystem: "http", Name: string(HttpRequestDurationTag),
		Help: "HTTP requests durations, sliding window = 10m",
	},
		[]string{"status", "route", "method"},
	),
	SuccessfulQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "gridbroker", Subsystem: "db", Name: string(SuccessfulQueryDurationTag),
		Help: "Successful DB query durations",
	},
		[]string{"query_type"},
	),
	FailureQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "gridbroker", Subsystem: "db", Name: string(FailureQueryDurationTag),
		Help: "Failure DB query durations",
	},
		[]string{"query_type"},
	),
	OperationDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "gridbroker", Subsystem: "broker", Name: string(OperationDurationTag),
		Help: "Durations of data source operations",
	},
		OperationLabelNames,
	),
}

var CounterMetrics = map[MetricTag]prometheus.Counter{
	DescriptorsEvictedCount: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gridbroker", Subsystem: "broker", Name: string(DescriptorsEvictedCount),
		Help: "A counter of descriptor cache evictions after on-disk changes",
	}),
}

var CounterVecMetrics = map[MetricTag]*prometheus.CounterVec{
	TransactionsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridbroker", Subsystem: "broker", Name: string(TransactionsCounterTag),
		Help: "A counter of processed transaction envelopes",
	},
		[]string{"front_end"},
	),
	OperationsCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridbroker", Subsystem: "broker", Name: string(OperationsCounterTag),
		Help: "A counter of executed operations",
	},
		OperationLabelNames,
	),
}
