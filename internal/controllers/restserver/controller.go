// Package restserver exposes the analysis pipeline and stored runs over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/signallab/internal/analysis"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/internal/metrics"
	"github.com/chrissnell/signallab/pkg/config"
)

// Controller represents the REST server controller
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerConfig
	Server       http.Server
	analyzer     *analysis.Analyzer
	metrics      *metrics.Metrics
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new REST server controller. m may be nil, in
// which case /metrics is not served.
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerConfig, analyzer *analysis.Analyzer, m *metrics.Metrics, logger *zap.SugaredLogger) (*Controller, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("REST server requires an analyzer")
	}
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: sc,
		analyzer:     analyzer,
		metrics:      m,
		logger:       logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if sc.HTTPPort == 0 {
		logger.Info("server.http_port not provided; defaulting to 8080")
		sc.HTTPPort = 8080
	}
	ctrl.serverConfig = sc

	ctrl.handlers = NewHandlers(ctrl, int64(sc.MaxBodyMB)<<20)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.HTTPPort)
	ctrl.Server.Handler = ctrl.Handler()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.serverConfig.TLSCertPath != "" && c.serverConfig.TLSKeyPath != "" {
			if err := c.Server.ListenAndServeTLS(c.serverConfig.TLSCertPath, c.serverConfig.TLSKeyPath); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the router wrapped in the access log, panic recovery and
// CORS middleware
func (c *Controller) Handler() http.Handler {
	accessLog := zap.NewStdLog(c.logger.Desugar())

	var h http.Handler = c.setupRouter()
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(accessLog), handlers.PrintRecoveryStack(true))(h)
	return handlers.CombinedLoggingHandler(accessLog.Writer(), h)
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analyze", c.handlers.PostAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/stats", c.handlers.PostStats).Methods(http.MethodPost)
	api.HandleFunc("/higuchi", c.handlers.PostHiguchi).Methods(http.MethodPost)

	api.HandleFunc("/runs", c.handlers.GetRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.handlers.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.handlers.DeleteRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/labels", c.handlers.PutLabels).Methods(http.MethodPut)
	api.HandleFunc("/runs/{id}/scatter/{kind}", c.handlers.GetScatter).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/segments.csv", c.handlers.GetSegmentsCSV).Methods(http.MethodGet)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	// The metrics endpoint is only served when a registry was supplied
	if c.metrics != nil {
		router.Handle("/metrics", c.metrics.Handler()).Methods(http.MethodGet)
	}

	return router
}
