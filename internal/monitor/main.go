package monitor

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MonitorClient is the metrics back-end behind MonitorService. Prometheus is
// the only implementation today.
type MonitorClient interface {
	GetMetricHttpHandler() http.Handler
	GetMetricType() MetricType
	MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels)
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels)
	MonitorCounters(tag MetricTag, labels map[string]string)
	MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string)
}

type MetricType string

const (
	MetricTypePrometheus MetricType = "PROMETHEUS"
)

func ParseMetricType(metricTypeStr string) (MetricType, error) {
	mType := MetricType(strings.ToUpper(metricTypeStr))
	switch mType {
	case MetricTypePrometheus:
		return mType, nil
	default:
		return "", fmt.Errorf("invalid metric type %q", metricTypeStr)
	}
}

type MetricOptions struct {
	MetricType  MetricType
	Environment string
}

func GetClient(opts MetricOptions) (MonitorClient, error) {
	switch opts.MetricType {
	case MetricTypePrometheus:
		return NewPrometheusClient()
	default:
		return nil, fmt.Errorf("unknown metric type: %q", opts.MetricType)
	}
}
