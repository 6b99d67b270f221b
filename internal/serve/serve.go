package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	supporthttp "github.com/stellar/go-stellar-sdk/support/http"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/broker"
	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/crashtracker"
	"github.com/gridbroker/gridbroker/internal/db"
	"github.com/gridbroker/gridbroker/internal/datasource"
	"github.com/gridbroker/gridbroker/internal/monitor"
	"github.com/gridbroker/gridbroker/internal/serve/httperror"
	"github.com/gridbroker/gridbroker/internal/serve/httphandler"
	"github.com/gridbroker/gridbroker/internal/serve/middleware"
)

const ServiceID = "serve"

type HTTPServerInterface interface {
	Run(conf supporthttp.Config)
}

type HTTPServer struct{}

func (h *HTTPServer) Run(conf supporthttp.Config) {
	supporthttp.Run(conf)
}

type ServeOptions struct {
	Environment        string
	GitCommit          string
	Version            string
	Port               int
	ConfigPath         string
	CorsAllowedOrigins []string
	RequestsPerSecond  int
	WatchDataSources   bool

	MonitorService     monitor.MonitorServiceInterface
	CrashTrackerClient crashtracker.CrashTrackerClient

	config         *config.Config
	connectionPool *db.ConnectionPool
	dataSourcePool *datasource.Pool
}

// SetupDependencies uses the serve options to set up the dependencies for
// the server.
func (opts *ServeOptions) SetupDependencies() error {
	// Route unexpected handler errors through the crash tracker.
	httperror.SetDefaultReportErrorFunc(opts.CrashTrackerClient.LogAndReportErrors)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	opts.config = cfg

	opts.connectionPool = db.NewConnectionPoolWithMetrics(cfg, opts.MonitorService)

	dsPool, err := datasource.NewPool(cfg, opts.connectionPool)
	if err != nil {
		return fmt.Errorf("creating data source pool: %w", err)
	}
	dsPool.SetMonitorService(opts.MonitorService)
	opts.dataSourcePool = dsPool

	if opts.WatchDataSources {
		if err := dsPool.Watch(context.Background()); err != nil {
			return fmt.Errorf("starting descriptor watcher: %w", err)
		}
	}

	return nil
}

func Serve(opts ServeOptions, httpServer HTTPServerInterface) error {
	if err := opts.SetupDependencies(); err != nil {
		return fmt.Errorf("starting dependencies: %w", err)
	}

	listenAddr := fmt.Sprintf(":%d", opts.Port)
	serverConfig := supporthttp.Config{
		ListenAddr:          listenAddr,
		Handler:             handleHTTP(opts),
		TCPKeepAlive:        time.Minute * 3,
		ShutdownGracePeriod: time.Second * 50,
		ReadTimeout:         time.Second * 5,
		WriteTimeout:        time.Second * 35,
		IdleTimeout:         time.Minute * 2,
		OnStarting: func() {
			log.Info("Starting GridBroker Server")
			log.Infof("Listening on %s", listenAddr)
		},
		OnStopping: func() {
			log.Info("Closing the connection pools...")
			if err := opts.connectionPool.Close(); err != nil {
				log.Errorf("error closing connection pools: %s", err.Error())
			}

			log.Info("Stopping GridBroker Server")
		},
	}
	httpServer.Run(serverConfig)
	return nil
}

func handleHTTP(o ServeOptions) *chi.Mux {
	mux := chi.NewMux()

	mux.Use(middleware.CorsMiddleware(o.CorsAllowedOrigins))
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.RecoverHandler)
	mux.Use(middleware.MetricsRequestHandler(o.MonitorService))
	if o.RequestsPerSecond > 0 {
		mux.Use(middleware.RateLimitMiddleware(o.RequestsPerSecond))
	}

	transactionHandler := httphandler.TransactionHandler{
		Parser:         &broker.EnvelopeParser{Pool: o.dataSourcePool, Config: o.config},
		Formatter:      &broker.Formatter{Config: o.config},
		MonitorService: o.MonitorService,
	}

	router := o.config.Router()
	mux.HandleFunc(router.IDACallPath, transactionHandler.ServeIDA)
	mux.HandleFunc(router.RESTCallPath, transactionHandler.ServeREST)
	mux.HandleFunc(router.RESTCallPath+"/*", transactionHandler.ServeREST)

	mux.Get(router.DataSourceLoaderPath, httphandler.DataSourceLoaderHandler{
		Pool: o.dataSourcePool,
	}.ServeHTTP)

	mux.Get("/health", httphandler.HealthHandler{
		ReleaseID: o.GitCommit,
		ServiceID: ServiceID,
		Version:   o.Version,
	}.ServeHTTP)

	return mux
}
