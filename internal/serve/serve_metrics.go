package serve

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	supporthttp "github.com/stellar/go-stellar-sdk/support/http"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/monitor"
)

type MetricsServeOptions struct {
	Port        int
	Environment string

	MonitorService monitor.MonitorServiceInterface
	MetricType     monitor.MetricType
}

// MetricsServe runs the scrape endpoint on its own port, separate from the
// transaction traffic.
func MetricsServe(opts MetricsServeOptions, httpServer HTTPServerInterface) error {
	mux, err := handleMetricsHTTP(opts.MonitorService)
	if err != nil {
		return fmt.Errorf("building metrics handler: %w", err)
	}

	listenAddr := fmt.Sprintf(":%d", opts.Port)
	httpServer.Run(supporthttp.Config{
		ListenAddr:   listenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  2 * time.Minute,
		OnStarting: func() {
			log.Infof("Starting %s metrics server on %s", opts.MetricType, listenAddr)
		},
		OnStopping: func() {
			log.Infof("Stopping %s metrics server", opts.MetricType)
		},
	})
	return nil
}

func handleMetricsHTTP(monitorService monitor.MonitorServiceInterface) (*chi.Mux, error) {
	metricsHandler, err := monitorService.GetMetricHttpHandler()
	if err != nil {
		return nil, fmt.Errorf("getting metrics handler: %w", err)
	}

	mux := chi.NewMux()
	mux.Handle("/metrics", metricsHandler)
	return mux, nil
}
