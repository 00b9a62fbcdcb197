package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"awakenfetch/internal/config"
	"awakenfetch/internal/handler"
	"awakenfetch/internal/repo"
	"awakenfetch/internal/service"
	"awakenfetch/pkg/database"
	"awakenfetch/pkg/integrations/chains"
	"awakenfetch/pkg/integrations/eventbus"
	"awakenfetch/pkg/integrations/httpfetch"
	pricing "awakenfetch/pkg/integrations/prices"
	"awakenfetch/pkg/integrations/prices/coingeckoprices"
	"awakenfetch/pkg/integrations/txcache"
	"awakenfetch/pkg/observability"
	"awakenfetch/pkg/types/events"
	"awakenfetch/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := utils.LoadEnv(); err != nil {
		log.Fatal("Failed to load .env:", err)
	}

	cfg, err := config.Load(utils.GetEnv("CONFIG_PATH", config.DefaultPath))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(database.WithPath(cfg.Database.Path), database.WithLogger(logger))
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	conn, err := db.Get()
	if err != nil {
		log.Fatal("Failed to get database connection:", err)
	}
	repository, err := repo.New(conn)
	if err != nil {
		log.Fatal("Failed to create repository:", err)
	}
	if err := repository.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	metrics := observability.NewMetrics(config.DefaultMetricsNamespace)

	store := txcache.Store(txcache.NewMemoryStore())
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("Failed to reach redis:", err)
		}
		store = txcache.NewRedisStore(rdb, cfg.Cache.RedisKey)
		logger.Info("transaction cache backed by redis", "addr", cfg.Cache.RedisAddr)
	}

	cache, err := txcache.New(ctx,
		txcache.WithStore(store),
		txcache.WithLogger(logger),
		txcache.WithRecorder(metrics),
		txcache.WithTTL(cfg.Cache.TTL),
		txcache.WithMaxEntries(cfg.Cache.MaxEntries),
	)
	if err != nil {
		log.Fatal("Failed to create transaction cache:", err)
	}

	fetcher, err := httpfetch.New(
		httpfetch.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		httpfetch.WithLogger(logger),
		httpfetch.WithRecorder(metrics),
		httpfetch.WithDefaults(cfg.FetchDefaults()),
	)
	if err != nil {
		log.Fatal("Failed to create fetcher:", err)
	}

	registry, err := chains.NewDefaultRegistry(cfg.RegistryConfig(), fetcher, logger)
	if err != nil {
		log.Fatal("Failed to create chain registry:", err)
	}

	txOpts := []service.TransactionOption{
		service.WithTransactionContext(ctx),
		service.WithTransactionLogger(logger),
		service.WithTransactionRegistry(registry),
		service.WithTransactionCache(cache),
		service.WithTransactionMetrics(metrics),
		service.WithPruneInterval(cfg.Cache.PruneInterval),
	}
	if cfg.PricingEnabled() {
		cgOpts := []coingeckoprices.Option{
			coingeckoprices.WithAPIKey(cfg.Pricing.CoinGeckoAPIKey),
			coingeckoprices.WithFetcher(fetcher),
			coingeckoprices.WithLogger(logger),
		}
		if cfg.Pricing.CoinGeckoBaseURL != "" {
			cgOpts = append(cgOpts, coingeckoprices.WithBaseURL(cfg.Pricing.CoinGeckoBaseURL))
		}
		pricer, err := coingeckoprices.NewPriceFetcher(cgOpts...)
		if err != nil {
			log.Fatal("Failed to create price fetcher:", err)
		}
		valuer, err := pricing.NewValuer(pricing.WithPricer(pricer), pricing.WithLogger(logger))
		if err != nil {
			log.Fatal("Failed to create valuer:", err)
		}
		txOpts = append(txOpts, service.WithTransactionValuer(valuer))
		logger.Info("fiat valuation enabled", "source", "coingecko")
	}

	txSvc, err := service.NewTransactionService(txOpts...)
	if err != nil {
		log.Fatal("Failed to create transaction service:", err)
	}

	exportRecorder, err := service.NewExportService(
		service.WithExportLogger(logger),
		service.WithExportRepo(repository),
	)
	if err != nil {
		log.Fatal("Failed to create export recorder:", err)
	}
	exportBus, err := eventbus.New(
		eventbus.WithContext(ctx),
		eventbus.WithLogger(logger),
		eventbus.WithTopic(events.TopicExports),
		eventbus.WithHandler(exportRecorder.Handle),
	)
	if err != nil {
		log.Fatal("Failed to create export bus:", err)
	}
	if err := exportBus.Subscribe(); err != nil {
		log.Fatal("Failed to start export subscriber:", err)
	}
	exportSvc, err := service.NewExportService(
		service.WithExportLogger(logger),
		service.WithExportRepo(repository),
		service.WithExportPublisher(exportBus),
	)
	if err != nil {
		log.Fatal("Failed to create export service:", err)
	}

	if err := txSvc.Start(); err != nil {
		log.Fatal("Failed to start cache pruning:", err)
	}

	r := gin.Default()
	h, err := handler.New(
		handler.WithEngine(r),
		handler.WithTransactionService(txSvc),
		handler.WithExportService(exportSvc),
		handler.WithMetrics(metrics),
		handler.WithLogger(logger),
	)
	if err != nil {
		log.Fatal("Failed to create handler:", err)
	}
	if err := h.Setup(); err != nil {
		log.Fatal("Failed to setup routes:", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		txSvc.Stop()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
		cancel()
	}()

	logger.Info("starting AwakenFetch", "port", cfg.Server.Port, "chains", len(registry.List()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Failed to start server:", err)
	}
}
