// Package app wires configuration, storage, the analyzer and the REST server
// into the signallab service.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chrissnell/signallab/internal/analysis"
	"github.com/chrissnell/signallab/internal/controllers/restserver"
	"github.com/chrissnell/signallab/internal/log"
	"github.com/chrissnell/signallab/internal/metrics"
	"github.com/chrissnell/signallab/internal/storage"
	"github.com/chrissnell/signallab/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) (err error) {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	m := metrics.New()
	if n, cerr := store.CountRuns(ctx); cerr == nil {
		m.SetRunsStored(n)
	} else {
		a.logger.Warnf("unable to count stored runs: %v", cerr)
	}

	analyzer, err := analysis.NewAnalyzer(analysis.ParamsFromConfig(cfg.Analysis), store, m, a.logger)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	ctrl, err := restserver.NewController(ctx, &wg, cfg.Server, analyzer, m, a.logger)
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Infow("Application started successfully",
		"storage", cfg.Storage.Backend,
		"workers", cfg.Analysis.Workers,
		"samples_per_segment", cfg.Analysis.SamplesPerSegment)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
