// Package app initializes and holds the long-lived application services,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/clock/system"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/dataset"
	"github.com/atlasforge/worldstat-crawler/internal/logging"
	"github.com/atlasforge/worldstat-crawler/internal/merge"
	"github.com/atlasforge/worldstat-crawler/internal/metrics"
	"github.com/atlasforge/worldstat-crawler/internal/snapshot"
	"github.com/atlasforge/worldstat-crawler/internal/source"
)

// App holds the shared services: config, logger, snapshot store, the source
// registry, the merge engine and the dataset reader. It is built once at
// startup and injected into the commands through the context.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *snapshot.Store
	sources *source.Registry
	merger  *merge.Merger
	dataset *dataset.Manager
	clock   clock.Clock
}

// New builds the App from the configuration at cfgPath ("" means defaults
// plus environment). It fails fast when any service cannot be initialized.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	store, err := snapshot.NewStore(cfg.Data.RawDir)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	clk := system.New()
	client := &http.Client{Timeout: cfg.FetchTimeout()}

	registry := source.NewRegistry(
		source.NewGDP(cfg.Sources.GDP, client, store, clk, logger.Named("gdp")),
		source.NewOil(cfg.Sources.Oil, client, store, clk, logger.Named("oil")),
		source.NewAgriculture(cfg.Sources.Agriculture, client, store, clk, logger.Named("agriculture")),
		source.NewMinerals(cfg.Sources.Minerals, client, store, clk, logger.Named("minerals")),
		source.NewGoldReserves(cfg.Sources.GoldReserves, cfg.HTTP, store, clk, logger.Named("gold_reserves")),
	)

	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		sources: registry,
		merger:  merge.New(store, cfg.Data.MergedPath, clk, logger.Named("merge")),
		dataset: dataset.NewManager(cfg.Data.MergedPath),
		clock:   clk,
	}, nil
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetStore returns the intermediate snapshot store.
func (a *App) GetStore() *snapshot.Store { return a.store }

// GetSources returns the source registry.
func (a *App) GetSources() *source.Registry { return a.sources }

// GetMerger returns the merge engine.
func (a *App) GetMerger() *merge.Merger { return a.merger }

// GetDataset returns the merged dataset reader.
func (a *App) GetDataset() *dataset.Manager { return a.dataset }

// GetClock returns the wall clock.
func (a *App) GetClock() clock.Clock { return a.clock }

// Close flushes buffered log output. Called by a Cobra hook after the
// command finishes.
func (a *App) Close() {
	// Sync can fail on stderr; nothing useful to do about it.
	_ = a.logger.Sync()
}
