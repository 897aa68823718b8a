package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/batch"
	"github.com/matthiasrib29/StoFlow-sub015/internal/bridge"
	"github.com/matthiasrib29/StoFlow-sub015/internal/common"
	"github.com/matthiasrib29/StoFlow-sub015/internal/dispatcher"
	"github.com/matthiasrib29/StoFlow-sub015/internal/facade"
	"github.com/matthiasrib29/StoFlow-sub015/internal/handlers"
	"github.com/matthiasrib29/StoFlow-sub015/internal/orchestrator"
	"github.com/matthiasrib29/StoFlow-sub015/internal/registry"
	"github.com/matthiasrib29/StoFlow-sub015/internal/services/ebay"
	"github.com/matthiasrib29/StoFlow-sub015/internal/services/etsy"
	"github.com/matthiasrib29/StoFlow-sub015/internal/services/vinted"
	"github.com/matthiasrib29/StoFlow-sub015/internal/stats"
	badgerstore "github.com/matthiasrib29/StoFlow-sub015/internal/storage/badger"
)

// App wires the application components together
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage *badgerstore.Manager

	Registry   *registry.Registry
	Bridge     *bridge.Bridge
	Sockets    *bridge.SocketManager
	Dispatcher *dispatcher.Dispatcher
	Facade     *facade.Service

	JobHandler        *handlers.JobHandler
	BatchHandler      *handlers.BatchHandler
	TaskHandler       *handlers.TaskHandler
	PluginHandler     *handlers.PluginHandler
	StatsHandler      *handlers.StatsHandler
	ConnectionHandler *handlers.ConnectionHandler
	APIHandler        *handlers.APIHandler
}

// New builds the application: storage, bridge, action services, worker
// pool and HTTP handlers
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badgerstore.NewManager(logger, config.Storage.Badger.Path, config.Storage.Badger.ResetOnStartup)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	queueTimeout := common.ParseDuration(config.Bridge.RequestTimeout, 60*time.Second)
	pluginBridge := bridge.NewBridge(logger, config.Bridge.QueueCap, queueTimeout)
	sockets := bridge.NewSocketManager(pluginBridge, logger)

	reg := registry.NewRegistry(logger)
	services := [][]*registry.Handler{
		vinted.NewService(pluginBridge, &config.Marketplaces.Vinted, logger).Handlers(),
		ebay.NewService(storage.Connections(), &config.Marketplaces.Ebay, logger).Handlers(),
		etsy.NewService(storage.Connections(), &config.Marketplaces.Etsy, logger).Handlers(),
	}
	for _, handlerSet := range services {
		for _, h := range handlerSet {
			if err := reg.Register(h); err != nil {
				storage.Close()
				return nil, fmt.Errorf("failed to register action handler: %w", err)
			}
		}
	}

	if err := storage.ActionTypes().SeedActionTypes(context.Background(), reg.ActionTypes()); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to seed action types: %w", err)
	}

	orch := orchestrator.NewOrchestrator(reg, logger)
	batches := batch.NewTracker(logger)
	aggregator := stats.NewAggregator(logger)
	gate := dispatcher.NewRateGate(&config.Marketplaces)

	disp := dispatcher.NewDispatcher(config, storage, orch, gate, batches, aggregator, logger)
	fac := facade.NewService(storage, reg, orch, batches, aggregator, pluginBridge, config, logger)

	a := &App{
		Config:     config,
		Logger:     logger,
		Storage:    storage,
		Registry:   reg,
		Bridge:     pluginBridge,
		Sockets:    sockets,
		Dispatcher: disp,
		Facade:     fac,

		JobHandler:        handlers.NewJobHandler(fac, logger),
		BatchHandler:      handlers.NewBatchHandler(fac, logger),
		TaskHandler:       handlers.NewTaskHandler(fac, logger),
		PluginHandler:     handlers.NewPluginHandler(fac, sockets, &config.Bridge, logger),
		StatsHandler:      handlers.NewStatsHandler(fac, logger),
		ConnectionHandler: handlers.NewConnectionHandler(fac, logger),
		APIHandler:        handlers.NewAPIHandler(logger),
	}
	return a, nil
}

// Start launches the background components
func (a *App) Start(ctx context.Context) error {
	return a.Dispatcher.Start(ctx)
}

// Close stops background work and releases resources
func (a *App) Close() error {
	a.Dispatcher.Stop()
	a.Sockets.CloseAll()
	return a.Storage.Close()
}
