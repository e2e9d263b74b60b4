package main

import (
	"github.com/whale-tracker/internal/adapter"
	"github.com/whale-tracker/internal/config"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/notifier"
	"github.com/whale-tracker/internal/ratelimit"
	"github.com/whale-tracker/internal/service"
	"github.com/whale-tracker/internal/storage"
	"github.com/whale-tracker/internal/worker"
)

// app holds every component a command needs, built once from configuration
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *storage.FileStore
	pipeline *service.Pipeline
	closers  []func()
}

// newApp connects the optional sinks and wires the pipeline.
// Optional backends that fail to connect are logged and skipped.
func newApp(cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  storage.NewFileStore(cfg.Data, logger),
	}

	var (
		priceCache  service.LatestPriceCache
		dailySink   service.DailySink
		metricsSink service.MetricsSink
		budget      *ratelimit.BudgetTracker
	)

	if cfg.Database.Redis.Enabled {
		redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without price cache or shared budget")
		} else {
			a.closers = append(a.closers, func() { _ = redisCache.Close() })
			priceCache = storage.NewPriceCache(redisCache, cfg.Prices.AssetID, cfg.Prices.VsCurrency, cfg.Prices.CacheTTL)

			if cfg.Pipeline.RequestBudget > 0 {
				// A sixth of the window stays reserved for price refreshes
				reserved := cfg.Pipeline.RequestBudget / 6
				if reserved == 0 {
					reserved = 1
				}
				budget, err = ratelimit.NewBudgetTracker(&ratelimit.BudgetTrackerConfig{
					Redis:          redisCache.Client(),
					TotalBudget:    cfg.Pipeline.RequestBudget,
					ReservedBudget: reserved,
					WindowSize:     cfg.Pipeline.BudgetWindow,
				})
				if err != nil {
					a.Close()
					return nil, err
				}
				logger.WithField("budget", cfg.Pipeline.RequestBudget).Info("Shared request budget enabled")
			}
		}
	}

	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, daily aggregates stay on disk only")
		} else {
			a.closers = append(a.closers, func() { _ = clickhouse.Close() })
			dailySink = storage.NewDailyAggregateRepository(clickhouse)
		}
	}

	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Warn("Postgres unavailable, metrics stay on disk only")
		} else {
			a.closers = append(a.closers, postgres.Close)
			metricsSink = storage.NewMetricsRepository(postgres)
		}
	}

	ledgerPacer := ratelimit.NewPacer(ratelimit.PacerConfig{
		Delay:             cfg.Ledger.RequestDelay,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
		Budget:            budget,
		Priority:          ratelimit.PriorityLow,
	})
	ledger := adapter.NewLedgerClient(adapter.LedgerClientConfig{
		BaseURL:  cfg.Ledger.BaseURL,
		PageSize: cfg.Ledger.PageSize,
		Timeout:  cfg.Ledger.Timeout,
		Pacer:    ledgerPacer,
		Identity: adapter.NewIdentityRotator(cfg.Ledger.UserAgents, cfg.Ledger.Proxy),
	})

	priceClient := adapter.NewPriceClient(adapter.PriceClientConfig{
		BaseURL:    cfg.Prices.BaseURL,
		APIKey:     cfg.Prices.APIKey,
		AssetID:    cfg.Prices.AssetID,
		VsCurrency: cfg.Prices.VsCurrency,
		Timeout:    cfg.Prices.Timeout,
		Pacer: ratelimit.NewPacer(ratelimit.PacerConfig{
			Budget:   budget,
			Priority: ratelimit.PriorityHigh,
		}),
	})

	alerts, err := notifier.New(cfg.Alerts, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = alerts.Close() })
	var sender service.AlertSender
	if alerts.Count() > 0 {
		sender = alerts
	}

	pool := worker.NewPool(cfg.Pipeline.Workers, logger)
	processor := service.NewProcessingService(a.store, a.store, dailySink, logger)
	metrics := service.NewMetricsService(service.NewMetricsEngine(cfg.Metrics), a.store, a.store, metricsSink, pool, logger)

	a.pipeline = service.NewPipeline(service.PipelineDeps{
		Prices:    service.NewPriceService(a.store, priceClient, priceCache, cfg.Prices, logger),
		Richlist:  a.store,
		Collector: service.NewCollectorService(ledger, a.store, logger),
		Processor: processor,
		Metrics:   metrics,
		Alerts:    service.NewAlertEvaluator(cfg.Alerts, a.store, a.store, sender, logger),
		Pool:      pool,
		Logger:    logger,
	})

	return a, nil
}

// Close releases connections in reverse order of opening
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
