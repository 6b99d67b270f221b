package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MonitorService_Start(t *testing.T) {
	service := &MonitorService{}

	err := service.Start(MetricOptions{MetricType: MetricTypePrometheus})
	require.NoError(t, err)
	require.NotNil(t, service.MonitorClient)

	err = service.Start(MetricOptions{MetricType: MetricTypePrometheus})
	assert.EqualError(t, err, "service already initialized")
}

func Test_MonitorService_requiresClient(t *testing.T) {
	service := &MonitorService{}

	_, err := service.GetMetricType()
	assert.EqualError(t, err, "client was not initialized")

	_, err = service.GetMetricHttpHandler()
	assert.EqualError(t, err, "client was not initialized")

	err = service.MonitorHttpRequestDuration(time.Second, HttpRequestLabels{})
	assert.EqualError(t, err, "client was not initialized")

	err = service.MonitorDBQueryDuration(time.Second, SuccessfulQueryDurationTag, DBQueryLabels{})
	assert.EqualError(t, err, "client was not initialized")

	err = service.MonitorCounters(TransactionsCounterTag, nil)
	assert.EqualError(t, err, "client was not initialized")

	err = service.MonitorDuration(time.Second, OperationDurationTag, map[string]string{})
	assert.EqualError(t, err, "client was not initialized")
}

func Test_MonitorService_delegatesToClient(t *testing.T) {
	service := &MonitorService{}
	require.NoError(t, service.Start(MetricOptions{MetricType: MetricTypePrometheus}))

	metricType, err := service.GetMetricType()
	require.NoError(t, err)
	assert.Equal(t, MetricTypePrometheus, metricType)

	handler, err := service.GetMetricHttpHandler()
	require.NoError(t, err)
	assert.NotNil(t, handler)

	assert.NoError(t, service.MonitorHttpRequestDuration(time.Millisecond, HttpRequestLabels{
		Status: "200", Route: "/ida", Method: "POST",
	}))
	assert.NoError(t, service.MonitorDBQueryDuration(time.Millisecond, SuccessfulQueryDurationTag, DBQueryLabels{
		QueryType: "SELECT",
	}))
	assert.NoError(t, service.MonitorCounters(TransactionsCounterTag, map[string]string{"front_end": "ida"}))
	assert.NoError(t, service.MonitorDuration(time.Millisecond, OperationDurationTag, OperationLabels{
		DataSource: "country", OperationType: "fetch", Status: "0",
	}.ToMap()))
}
