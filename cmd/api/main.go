package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/opsportal/notifier/internal/config"
	"github.com/opsportal/notifier/internal/domain"
	"github.com/opsportal/notifier/internal/handler"
	"github.com/opsportal/notifier/internal/infra/postgresql"
	"github.com/opsportal/notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/opsportal/notifier/internal/infra/redis"
	"github.com/opsportal/notifier/internal/observability"
	"github.com/opsportal/notifier/internal/repository"
	"github.com/opsportal/notifier/internal/sender"
	"github.com/opsportal/notifier/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	httpClient := sender.NewHTTPClient(time.Duration(cfg.SendTimeoutSec) * time.Second)

	slackSender, err := sender.NewSlackSender(httpClient)
	if err != nil {
		logger.Fatal("slack sender initialization failed", zap.Error(err))
	}
	teamsSender, err := sender.NewTeamsSender(httpClient)
	if err != nil {
		logger.Fatal("teams sender initialization failed", zap.Error(err))
	}
	emailAPISender, err := sender.NewEmailAPISender(httpClient)
	if err != nil {
		logger.Fatal("email api sender initialization failed", zap.Error(err))
	}
	webhookSender, err := sender.NewWebhookSender(httpClient)
	if err != nil {
		logger.Fatal("webhook sender initialization failed", zap.Error(err))
	}

	registry, err := sender.NewRegistry(
		slackSender,
		teamsSender,
		emailAPISender,
		webhookSender,
		sender.NewSMTPSender(),
	)
	if err != nil {
		logger.Fatal("sender registry initialization failed", zap.Error(err))
	}

	notificationRepo := repository.NewGormNotificationRepo(db)
	transportRepo := repository.NewGormTransportRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	metrics := observability.NewMetrics()

	dispatchService, err := service.NewDispatchService(
		transportRepo,
		notificationRepo,
		attemptRepo,
		registry,
		rateLimiter,
		cfg.DispatchConcurrency,
		cfg.DispatchScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatch service initialization failed", zap.Error(err))
	}
	dispatchService.SetMetrics(metrics)

	notificationService, err := service.NewNotificationService(
		notificationRepo,
		transportRepo,
		attemptRepo,
		logger,
	)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(handler.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterDispatchRoutes(app, dispatchService); err != nil {
		logger.Fatal("failed to register dispatch routes", zap.Error(err))
	}
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		logger.Fatal("failed to register notification routes", zap.Error(err))
	}

	logger.Info("notifier api started",
		zap.Int("port", cfg.APIPort),
		zap.Int("dispatchConcurrency", cfg.DispatchConcurrency),
		zap.Strings("channels", channelNames()),
	)

	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func channelNames() []string {
	channels := []domain.Channel{
		domain.ChannelSMTP,
		domain.ChannelEmailAPI,
		domain.ChannelSlack,
		domain.ChannelTeams,
		domain.ChannelWebhook,
	}

	names := make([]string, 0, len(channels))
	for _, channel := range channels {
		names = append(names, channel.String())
	}
	return names
}
