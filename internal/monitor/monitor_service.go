package monitor

import (
	"fmt"
	"net/http"
	"time"
)

type MonitorServiceInterface interface {
	Start(opts MetricOptions) error
	GetMetricType() (MetricType, error)
	GetMetricHttpHandler() (http.Handler, error)
	MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) error
	MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error
	MonitorCounters(tag MetricTag, labels map[string]string) error
	MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) error
}

var _ MonitorServiceInterface = (*MonitorService)(nil)

// MonitorService wraps the configured monitor client, tolerating the
// not-started state so instrumentation points never panic.
type MonitorService struct {
	MonitorClient MonitorClient
}

func (m *MonitorService) Start(opts MetricOptions) error {
	if m.MonitorClient != nil {
		return fmt.Errorf("service already initialized")
	}

	monitorClient, err := GetClient(opts)
	if err != nil {
		return fmt.Errorf("creating monitor client: %w", err)
	}

	m.MonitorClient = monitorClient
	return nil
}

func (m *MonitorService) client() (MonitorClient, error) {
	if m.MonitorClient == nil {
		return nil, fmt.Errorf("client was not initialized")
	}
	return m.MonitorClient, nil
}

func (m *MonitorService) GetMetricType() (MetricType, error) {
	client, err := m.client()
	if err != nil {
		return "", err
	}
	return client.GetMetricType(), nil
}

func (m *MonitorService) GetMetricHttpHandler() (http.Handler, error) {
	client, err := m.client()
	if err != nil {
		return nil, err
	}
	return client.GetMetricHttpHandler(), nil
}

func (m *MonitorService) MonitorHttpRequestDuration(duration time.Duration, labels HttpRequestLabels) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorHttpRequestDuration(duration, labels)
	return nil
}

func (m *MonitorService) MonitorDBQueryDuration(duration time.Duration, tag MetricTag, labels DBQueryLabels) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorDBQueryDuration(duration, tag, labels)
	return nil
}

func (m *MonitorService) MonitorDuration(duration time.Duration, tag MetricTag, labels map[string]string) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorDuration(duration, tag, labels)
	return nil
}

func (m *MonitorService) MonitorCounters(tag MetricTag, labels map[string]string) error {
	client, err := m.client()
	if err != nil {
		return err
	}
	client.MonitorCounters(tag, labels)
	return nil
}
