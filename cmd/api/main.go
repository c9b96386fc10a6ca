package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prichal/internal/api"
	"prichal/internal/config"
	"prichal/internal/database"
	"prichal/internal/domain"
	"prichal/internal/events"
	"prichal/internal/logging"
	"prichal/internal/metrics"
	"prichal/internal/repository"
	"prichal/internal/service"
	"prichal/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// engine is the wired booking engine with its background workers.
type engine struct {
	services      api.Services
	notifications *worker.NotificationWorker
	sweeper       *worker.Sweeper
	backups       *database.BackupService
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	db, err := database.NewDB(cfg.Database.Path, cfg.Database.BusyTimeoutMS, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	cache := initSharedCache(cfg, redisClient, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, db, redisClient, cache, &logger)
	if err != nil {
		return err
	}

	limiter := api.NewRateLimiter(&cfg.API, cache, &logger)
	grpcServer, err := api.NewGRPCServer(&cfg.API, eng.services, limiter, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, eng.services, limiter, &logger)

	startMetrics(ctx, cfg, &logger)

	go eng.notifications.Start(ctx)
	go eng.sweeper.Start(ctx)
	go eng.backups.Start(ctx)
	go grpcServer.WatchHealth(ctx, 30*time.Second)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func buildEngine(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	cache domain.SharedCache,
	logger *zerolog.Logger,
) (*engine, error) {
	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, err
	}
	clock := service.NewSystemClock(loc)
	bus := events.NewEventBus()

	settings := service.NewSettingsService(db, cache, bus, cfg.Booking.SettingsCacheTTL(), logger)
	if _, err := settings.Bootstrap(ctx, cfg.Settings); err != nil {
		logger.Error().Err(err).Msg("bootstrap settings")
		return nil, err
	}

	catalogPath := cfg.Booking.CatalogPath
	if env := os.Getenv("CATALOG_PATH"); env != "" {
		catalogPath = env
	}
	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("load catalog")
		return nil, err
	}
	resources := service.NewResourceService(db, logger)
	if err := resources.Sync(ctx, catalog); err != nil {
		logger.Error().Err(err).Msg("sync catalog")
		return nil, err
	}

	slots := service.NewAvailabilityService(resources, settings, db, clock, logger)
	pricing := service.NewPricingService(slots, clock, cfg.Booking.Currency, logger)
	bookings := service.NewBookingService(db, slots, pricing, service.NewCancellationResolver(settings), bus, clock, cfg.Booking.BookingPrefix, logger)
	inquiries := service.NewInquiryService(db, slots, bookings, bus, clock, cfg.Booking.InquiryPrefix, logger)

	notifications := worker.NewNotificationWorker(db, initNotifier(cfg, logger), redisClient, worker.RetryPolicy{
		MaxRetries:    cfg.Notifications.MaxRetries,
		InitialDelay:  time.Duration(cfg.Notifications.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Notifications.MaxDelaySeconds) * time.Second,
		BackoffFactor: 2,
	}, logger).WithQueueKeys(cfg.Notifications.QueueKey, cfg.Notifications.DeadLetterKey)
	notifications.Subscribe(bus)

	logger.Info().
		Int("resources", len(catalog)).
		Str("timezone", loc.String()).
		Str("currency", cfg.Booking.Currency).
		Msg("Booking engine ready")

	return &engine{
		services: api.Services{
			Resources:     resources,
			Slots:         slots,
			Pricing:       pricing,
			Bookings:      bookings,
			Inquiries:     inquiries,
			Settings:      settings,
			Audits:        db,
			Notifications: notifications,
			Storage:       db,
			Currency:      cfg.Booking.Currency,
			Location:      loc,
		},
		notifications: notifications,
		sweeper:       worker.NewSweeper(bookings, inquiries, cfg.Booking.SweepInterval(), logger),
		backups:       database.NewBackupService(db, cfg.Backup, logger),
	}, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSharedCache keeps settings and rate limits in redis when it is available
// and falls back to process memory while it is down.
func initSharedCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SharedCache {
	ttl := cfg.Booking.SettingsCacheTTL()
	memory := repository.NewMemoryCache(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverCache(repository.NewRedisCache(redisClient, ttl), memory, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notifications.Enabled {
		logger.Info().Str("webhook_url", cfg.Notifications.WebhookURL).Msg("webhook notifications enabled")
		return worker.NewWebhookNotifier(cfg.Notifications.WebhookURL, time.Duration(cfg.Notifications.TimeoutSeconds)*time.Second)
	}

	notifyLog := logging.Component(logger, "notifications")
	return worker.NewLogNotifier(func(eventType string, payload []byte) {
		notifyLog.Info().Str("event_type", eventType).RawJSON("payload", payload).Msg("notification")
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
