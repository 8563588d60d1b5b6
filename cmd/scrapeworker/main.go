package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"reviewpulse/scraper/internal/broker"
	"reviewpulse/scraper/internal/config"
	"reviewpulse/scraper/internal/logging"
	"reviewpulse/scraper/internal/metrics"
	"reviewpulse/scraper/internal/ops"
	"reviewpulse/scraper/internal/ratelimit"
	"reviewpulse/scraper/internal/scrape"
	"reviewpulse/scraper/internal/session"
	"reviewpulse/scraper/internal/worker"
)

func main() {
	// A missing .env is fine; production uses real environment variables.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, err := session.New(cfg.Redis.URL, logger.Named("session"))
	if err != nil {
		logger.Error("session store init failed", zap.Error(err))
		os.Exit(1)
	}
	if err := sessions.Ping(ctx); err != nil {
		logger.Error("redis unreachable", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("session store connected")

	b, err := broker.ConnectWithRetry(ctx, cfg.Broker.URL, cfg.Broker.ConnectAttempts, logger.Named("broker"))
	if err != nil {
		logger.Error("broker connect failed", zap.Error(err))
		os.Exit(1)
	}

	registry, browser := buildAdapters(cfg, logger)

	w := worker.New(registry, sessions, b, worker.Config{
		MaxReviews:    cfg.Reviews.Max,
		PositiveRatio: cfg.Reviews.PositiveRatio,
		NegativeRatio: cfg.Reviews.NegativeRatio,
	}, logger.Named("worker"))

	opsServer := ops.NewServer(cfg.Ops.ListenAddr, []ops.Dependency{
		{Name: "redis", Check: sessions.Ping},
		{Name: "rabbitmq", Check: func(context.Context) error { return b.Ping() }},
	}, logger.Named("ops"))

	go func() {
		if err := opsServer.ListenAndServe(); err != nil {
			logger.Error("ops server error", zap.Error(err))
			stop()
		}
	}()

	deliveries, err := b.Consume(ctx)
	if err != nil {
		logger.Error("consume failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("scrape worker ready",
		zap.String("provider", cfg.Adapter.Provider),
		zap.String("jobs_queue", broker.ScrapeJobsQueue),
		zap.String("results_queue", broker.ScrapeResultsQueue),
		zap.Int("max_reviews", cfg.Reviews.Max),
		zap.Float64("positive_ratio", cfg.Reviews.PositiveRatio),
		zap.Float64("negative_ratio", cfg.Reviews.NegativeRatio),
	)

	w.Run(ctx, deliveries)

	// The stream closing without a signal means the broker connection died.
	brokerLost := ctx.Err() == nil
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", zap.Error(err))
	}
	if browser != nil {
		browser.Close()
	}
	b.Close()
	if err := sessions.Close(); err != nil {
		logger.Warn("session store close failed", zap.Error(err))
	}
	logger.Info("shutdown complete")

	if brokerLost {
		logger.Error("delivery stream closed without a shutdown signal")
		_ = logger.Sync()
		os.Exit(1)
	}
}

// buildAdapters assembles the capture registry for the configured provider.
// The browser is only launched for the custom adapters; it comes back nil
// otherwise and for browser-disabled deployments.
func buildAdapters(cfg config.Config, logger *zap.Logger) (*scrape.Registry, *scrape.Browser) {
	registry := scrape.NewRegistry()

	switch cfg.Adapter.Provider {
	case config.ProviderScraperAPI:
		registry.SetOverride(scrape.NewScraperAPI(cfg.Adapter.ScraperAPIKey, logger.Named("scraperapi")))
		return registry, nil
	case config.ProviderOxylabs:
		registry.SetOverride(scrape.NewOxylabs(cfg.Adapter.OxylabsUser, cfg.Adapter.OxylabsPass, logger.Named("oxylabs")))
		return registry, nil
	}

	limiters := ratelimit.NewRegistry(cfg.RateLimitDelay())
	robots := scrape.NewRobotsGate(logger.Named("robots"))
	fetcher := scrape.NewCollyFetcher(cfg.FetchTimeout(), logger.Named("fetch"))

	var renderer scrape.Renderer
	var browser *scrape.Browser
	if cfg.Scrape.BrowserEnabled {
		browser = scrape.NewBrowser(logger.Named("browser"))
		renderer = browser
	} else {
		logger.Warn("browser disabled, rendered captures unavailable")
	}

	var sink scrape.SnapshotSink
	if cfg.Scrape.SnapshotDir != "" {
		fsSink, err := scrape.NewFileSystemSink(cfg.Scrape.SnapshotDir)
		if err != nil {
			logger.Warn("snapshot sink init failed", zap.Error(err))
		} else {
			sink = fsSink
			logger.Info("snapshot sink enabled", zap.String("dir", cfg.Scrape.SnapshotDir))
		}
	}

	registry.Register(scrape.PlatformTiki, scrape.NewTikiScraper(fetcher, robots, limiters, logger.Named("tiki")))
	registry.Register(scrape.PlatformLazada, scrape.NewLazadaScraper(fetcher, renderer, robots, limiters, logger.Named("lazada")))
	registry.Register(scrape.PlatformShopee, scrape.NewShopeeScraper(fetcher, renderer, robots, sink, limiters, logger.Named("shopee")))
	registry.Register(scrape.PlatformAmazon, scrape.NewAmazonScraper(renderer, robots, sink, limiters, logger.Named("amazon")))
	registry.Register(scrape.PlatformEbay, scrape.NewEbayScraper(renderer, robots, limiters, logger.Named("ebay")))
	return registry, browser
}
