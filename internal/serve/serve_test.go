package serve

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	supporthttp "github.com/stellar/go-stellar-sdk/support/http"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/crashtracker"
	"github.com/gridbroker/gridbroker/internal/datasource"
	"github.com/gridbroker/gridbroker/internal/monitor"
)

func serveTestOptions(t *testing.T) ServeOptions {
	t.Helper()

	v := viper.New()
	v.Set("dataSource.path", t.TempDir())
	cfg := config.New(v)

	dsPool, err := datasource.NewPool(cfg, nil)
	require.NoError(t, err)

	mockMonitor := &monitor.MockMonitorService{}
	mockMonitor.On("MonitorHttpRequestDuration", mock.Anything, mock.Anything).Return(nil)

	return ServeOptions{
		Environment:        "test",
		Version:            "1.0.0",
		GitCommit:          "abc123",
		CorsAllowedOrigins: []string{"*"},
		MonitorService:     mockMonitor,
		config:             cfg,
		dataSourcePool:     dsPool,
	}
}

func Test_handleHTTP_Health(t *testing.T) {
	handler := handleHTTP(serveTestOptions(t))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	wantBody := `{
		"status": "pass",
		"version": "1.0.0",
		"service_id": "serve",
		"release_id": "abc123"
	}`
	assert.JSONEq(t, wantBody, w.Body.String())
}

func Test_handleHTTP_routes(t *testing.T) {
	handler := handleHTTP(serveTestOptions(t))

	t.Run("IDA route rejects non-RPC requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ida", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("data source loader requires its parameter", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/loadDataSources", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown routes are 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func Test_Serve(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "gridbroker.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("dataSource:\n  path: "+dir+"\n"), 0o644))

	mockMonitor := &monitor.MockMonitorService{}
	opts := ServeOptions{
		Port:               8000,
		ConfigPath:         configPath,
		CorsAllowedOrigins: []string{"*"},
		MonitorService:     mockMonitor,
		CrashTrackerClient: &crashtracker.MockCrashTrackerClient{},
	}

	var runConfig supporthttp.Config
	server := &mockHTTPServer{onRun: func(conf supporthttp.Config) { runConfig = conf }}

	err := Serve(opts, server)
	require.NoError(t, err)

	assert.Equal(t, ":8000", runConfig.ListenAddr)
	assert.NotNil(t, runConfig.Handler)
	assert.Equal(t, 3*time.Minute, runConfig.TCPKeepAlive)
	assert.Equal(t, 50*time.Second, runConfig.ShutdownGracePeriod)
	assert.Equal(t, 5*time.Second, runConfig.ReadTimeout)
	assert.Equal(t, 35*time.Second, runConfig.WriteTimeout)
	assert.Equal(t, 2*time.Minute, runConfig.IdleTimeout)
}

func Test_MetricsServe(t *testing.T) {
	monitorService := &monitor.MonitorService{}
	require.NoError(t, monitorService.Start(monitor.MetricOptions{MetricType: monitor.MetricTypePrometheus}))

	opts := MetricsServeOptions{
		Port:           8002,
		MetricType:     monitor.MetricTypePrometheus,
		MonitorService: monitorService,
	}

	var runConfig supporthttp.Config
	server := &mockHTTPServer{onRun: func(conf supporthttp.Config) { runConfig = conf }}
	require.NoError(t, MetricsServe(opts, server))
	assert.Equal(t, ":8002", runConfig.ListenAddr)

	w := httptest.NewRecorder()
	runConfig.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gridbroker_broker_descriptors_evicted_counter")
}

func Test_MetricsServe_requiresStartedMonitor(t *testing.T) {
	err := MetricsServe(MetricsServeOptions{MonitorService: &monitor.MonitorService{}}, &mockHTTPServer{})
	assert.ErrorContains(t, err, "client was not initialized")
}

type mockHTTPServer struct {
	onRun func(conf supporthttp.Config)
}

func (m *mockHTTPServer) Run(conf supporthttp.Config) { m.onRun(conf) }

var _ HTTPServerInterface = (*mockHTTPServer)(nil)
