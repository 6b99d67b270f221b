package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stellar/go-stellar-sdk/support/log"
)

type prometheusClient struct {
	httpHandler http.Handler
}

var _ MonitorClient = (*prometheusClient)(nil)

// NewPrometheusClient registers every known metric tag with a fresh registry
// and serves it over the promhttp handler. A tag without a collector is a
// programming error caught at startup.
func NewPrometheusClient() (*prometheusClient, error) {
	registry := prometheus.NewRegistry()
	collectors := PrometheusMetrics()

	var metricTag MetricTag
	for _, tag := range metricTag.ListAll() {
		collector, ok := collectors[tag]
		if !ok {
			return nil, fmt.Errorf("metric tag %q has no prometheus collector", tag)
		}
		registry.MustRegister(collector)
	}

	return &prometheusClient{
		httpHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

func (prometheusClient) GetMetricType() MetricType {
	return MetricTypePrometheus
}

func (p *prometheusClient) GetMetricHttpHandler() http.Handler {
	return p.httpHandler
}

func (p *prometheusClient) MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) {
	SummaryVecMetrics[HttpRequestDurationTag].With(prometheus.Labels{
		"status": labels.Status,
		"route":  labels.Route,
		"method": labels.Method,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) {
	SummaryVecMetrics[tag].With(prometheus.Labels{
		"query_type": labels.QueryType,
	}).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) {
	SummaryVecMetrics[tag].With(labels).Observe(duration.Seconds())
}

func (p *prometheusClient) MonitorCounters(tag MetricTag, labels map[string]string) {
	if len(labels) > 0 {
		counterVec, ok := CounterVecMetrics[tag]
		if !ok {
			log.Errorf("metric tag %q has no prometheus counter vec", tag)
			return
		}
		counterVec.With(labels).Inc()
		return
	}

	counter, ok := CounterMetrics[tag]
	if !ok {
		log.Errorf("metric tag %q has no prometheus counter", tag)
		return
	}
	counter.Inc()
}
