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

	"tripdesk/internal/api"
	"tripdesk/internal/broker"
	"tripdesk/internal/config"
	"tripdesk/internal/database"
	"tripdesk/internal/domain"
	"tripdesk/internal/events"
	"tripdesk/internal/gateway"
	"tripdesk/internal/logging"
	"tripdesk/internal/metrics"
	"tripdesk/internal/notify"
	"tripdesk/internal/repository"
	"tripdesk/internal/service"
	"tripdesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	cache := initCache(redisClient, &logger)

	bus := events.NewEventBus(logging.Component(&logger, "events"))

	if cfg.Broker.URL != "" {
		publisher := broker.NewPublisher(cfg.Broker, broker.DialAMQP, logging.Component(&logger, "broker"))
		defer publisher.Close()
		bus.SubscribeAll(publisher.Handler())
	}

	outbox := worker.NewNotificationWorker(
		db,
		initNotifier(ctx, cfg, db, &logger),
		redisClient,
		worker.PolicyFromConfig(cfg.Worker),
		logging.Component(&logger, "notification-worker"),
	).WithPolling(cfg.Worker.PollInterval, cfg.Worker.BatchSize)
	bus.SubscribeAll(outbox.Handler())
	go outbox.Start(ctx)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup")).Start(ctx)
	}

	gw := gateway.NewClient(cfg.Gateway, logging.Component(&logger, "gateway"))

	svcLogger := logging.Component(&logger, "service")
	quotes := service.NewQuoteService(db, cache, cfg.Pricing.QuoteCacheTTL, svcLogger)
	payments := service.NewPaymentService(db, gw, cache, bus, cfg.Gateway, svcLogger)
	reconciler := service.NewReconciler(db, gw, bus, svcLogger)
	webhooks := service.NewDispatcher(gateway.VerifierFunc(gw.VerifyWebhookSignature), reconciler, db, cache, bus, svcLogger)

	checks := map[string]api.HealthCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Quotes:     quotes,
		Payments:   payments,
		Reconciler: reconciler,
		Webhooks:   webhooks,
		Reports:    db,
		Checks:     checks,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, checks, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, 15*time.Second)
	}

	startMetrics(ctx, cfg, &logger)

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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory cache")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCache prefers redis and falls back to process memory while redis is down.
func initCache(redisClient *redis.Client, logger *zerolog.Logger) domain.CacheStore {
	memory := repository.NewMemoryCache()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverCache(
		repository.NewRedisCache(redisClient, "tripdesk:"),
		memory,
		logging.Component(logger, "cache"),
	)
}

func initNotifier(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) domain.Notifier {
	var fanout notify.Fanout

	if tg := cfg.Notify.Telegram; tg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(tg.BotToken)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, manager notifications disabled")
		} else {
			bot.Debug = tg.Debug
			fanout = append(fanout, notify.NewTelegramNotifier(bot, tg.ManagerChatIDs, logging.Component(logger, "telegram")))
			logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
		}
	}

	if cfg.Notify.FCM.CredentialsFile != "" {
		push, err := notify.NewPushNotifier(ctx, cfg.Notify.FCM, db, logging.Component(logger, "fcm"))
		if err != nil {
			logger.Warn().Err(err).Msg("fcm init failed, customer pushes disabled")
		} else {
			fanout = append(fanout, push)
		}
	}

	if len(fanout) == 0 {
		logger.Warn().Msg("no notification channels configured")
	}
	return fanout
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
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
