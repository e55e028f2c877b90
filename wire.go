package main

import (
	"context"
	"fmt"
	"os"

	"auction-importer/auth"
	"auction-importer/config"
	"auction-importer/events"
	"auction-importer/metrics"
	"auction-importer/scraper"
	"auction-importer/scraper/function"
	"auction-importer/services"
	"auction-importer/session"
	"auction-importer/storage"
	"auction-importer/utils"
)

// app holds the wired services one command needs. Close releases them in
// reverse order.
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	metrics *metrics.Registry

	store     storage.Store
	importer  *services.Importer
	scrapes   *services.ScrapeService
	insights  *services.InsightService
	sessions  session.Store
	publisher events.Publisher

	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("[main] close: %v", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.NewRegistry(),
		insights: services.NewInsightService(logger),
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	store, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	var lock session.Lock = session.NewLocalLock()
	a.sessions = session.NewMemoryStore(session.DefaultTTL)
	if addr := a.cfg.RedisAddr(); addr != "" {
		rdb, err := session.NewRedisClient(ctx, addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.sessions = session.NewRedisStore(rdb, session.DefaultTTL)
		lock = session.NewRedisLock(rdb)
		a.logger.Info("[main] sessions and import lock on Redis %s", addr)
	}

	a.publisher, err = openPublisher(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.publisher.Close)

	var audit services.RawAuditor
	if path := a.cfg.Import.RawAuditCSV; path != "" {
		w, err := storage.NewCSVWriter(path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, w.Close)
		audit = w
	}

	policy, err := services.PricePolicyByName(a.cfg.Import.PricePolicy)
	if err != nil {
		return err
	}

	a.importer = services.NewImporter(a.logger, services.ImporterDeps{
		Writer:     storage.NewBulkWriter(store, a.cfg.Storage.ChunkSize, a.logger),
		Validator:  services.NewValidator(a.logger, a.cfg.Import.MaxRecords),
		Normalizer: services.NewNormalizer(a.logger, services.NormalizerOptions{Policy: policy}),
		Lock:       lock,
		LockTTL:    a.cfg.Import.LockTTL,
		Audit:      audit,
		Publisher:  a.publisher,
		Metrics:    a.metrics,
		MaxBytes:   a.cfg.Import.MaxBytes,
	})

	client := scraper.NewClient(scraper.ClientConfig{
		BaseURL:        a.cfg.BackendURL,
		APIKey:         a.cfg.BackendAPIKey,
		FunctionPath:   a.cfg.Scraper.FunctionPath,
		RequestsPerSec: a.cfg.Scraper.RequestsPerSec,
	}, a.logger)
	fallback := scraper.FallbackPolicy{Enabled: a.cfg.Scraper.MockFallback}
	a.scrapes = services.NewScrapeService(a.logger, client, a.importer, fallback, a.metrics)
	a.scrapes.ImportMock = a.cfg.Scraper.ImportMock
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres", "pq":
		return storage.NewPostgresStore(ctx, cfg.DSN(), logger)
	case "pgx":
		return storage.NewPgxStore(ctx, cfg.DSN(), cfg.Storage.MaxConns, logger)
	case "pebble":
		return storage.NewPebbleStore(cfg.Storage.PebbleDir)
	case "memory":
		logger.Warn("[main] memory storage: the catalog is lost on exit")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want postgres, pgx, pebble or memory)", cfg.Storage.Driver)
	}
}

func openPublisher(ctx context.Context, cfg *config.Config, logger *utils.Logger) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "none":
		return events.NopPublisher{}, nil
	case "nats":
		return events.NewNATSPublisher(ctx, cfg.Events.NATSURL, cfg.Events.NATSSubject, logger)
	case "kafka":
		return events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown EVENTS_DRIVER %q (want none, nats or kafka)", cfg.Events.Driver)
	}
}

func newHostedAuth(cfg *config.Config, logger *utils.Logger) *auth.HostedAuth {
	return auth.NewHostedAuth(cfg.BackendURL, cfg.BackendAPIKey, nil, logger)
}

func newFunctionServer(cfg *config.Config, logger *utils.Logger) (*function.Server, error) {
	rules := function.DefaultRules()
	if path := cfg.Function.RulesFile; path != "" {
		loaded, err := function.LoadRulesFile(path)
		if err != nil {
			return nil, err
		}
		rules = loaded
		logger.Info("[main] loaded %d rule sets from %s", len(rules), path)
	}

	var browser function.Fetcher
	if cfg.Function.Browser {
		browser = function.NewBrowserFetcher(cfg.Function.ChromeBin, logger)
	}
	return function.NewServer(function.ServerConfig{
		Rules:   rules,
		Browser: browser,
		Gate:    utils.NewFetchGate(cfg.Function.MaxInFlight, cfg.Function.MinInterval),
	}, logger), nil
}

func exitOnError(logger *utils.Logger, err error) {
	if err == nil {
		return
	}
	logger.Error("%v", err)
	os.Exit(1)
}
