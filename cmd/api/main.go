package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"companion/internal/api"
	"companion/internal/config"
	"companion/internal/database"
	"companion/internal/domain"
	"companion/internal/events"
	"companion/internal/export"
	"companion/internal/google"
	"companion/internal/logging"
	"companion/internal/metrics"
	"companion/internal/notify"
	"companion/internal/reminder"
	"companion/internal/repository"
	"companion/internal/service"
	"companion/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const memoryQueueSize = 1024

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	gate := service.NewAuthGate(db, logging.Component(logger, "auth"))
	if err := gate.BootstrapAdmins(ctx, cfg.Admins); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	queue := initTaskQueue(redisClient, logger)

	bus := events.NewEventBus(logging.Component(logger, "events"))
	notify.NewDispatcher(db, db, queue, logging.Component(logger, "dispatcher")).Register(bus)

	var scheduler *reminder.Scheduler
	if cfg.Reminders.Enabled {
		scheduler, err = reminder.NewScheduler(db, bus, cfg.Reminders, cfg.Location(), logging.Component(logger, "reminders"))
		if err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	goWait := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	if audit := initAuditSheet(ctx, cfg, logger); audit != nil {
		audit.Register(bus)
		goWait(audit.Start)
	}

	notificationWorker := worker.NewNotificationWorker(
		db,
		queue,
		initDeliverer(cfg, logger),
		worker.PolicyFromConfig(cfg.Notifications.Retry),
		logging.Component(logger, "worker"),
	)
	goWait(notificationWorker.Start)
	goWait(database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start)

	if scheduler != nil {
		goWait(scheduler.Start)
	}

	bookings := service.NewBookingService(db, db, gate, bus, service.BookingOptions{
		MaxBookingDays:  cfg.Booking.MaxBookingDays,
		CompletionGrace: time.Duration(cfg.Booking.CompletionGraceMinutes) * time.Minute,
		Location:        cfg.Location(),
	}, logging.Component(logger, "bookings"))
	users := service.NewUserService(db, db, logging.Component(logger, "users"))

	router := api.NewRouter(cfg.API, api.Dependencies{
		Bookings:   bookings,
		Users:      users,
		Admins:     gate,
		Deliveries: service.NewDeliveryService(db, gate, logging.Component(logger, "deliveries")),
		Exporter:   export.NewExporter(logging.Component(logger, "export")),
		Health:     db,
		Auth:       api.NewTokenAuth(cfg.API.Auth.JWTSecret, cfg.API.Auth.Issuer),
		Logger:     logger,
	})
	httpServer := api.NewServer(cfg.API.HTTP, router, logging.Component(logger, "http"))

	startMetrics(ctx, cfg, logger)

	err = serve(ctx, httpServer, cfg, logger)
	stop()
	wg.Wait()
	logger.Info().Msg("API server stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory queue")
		_ = repository.Close(client)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initTaskQueue prefers Redis and degrades to the in-process queue.
func initTaskQueue(client *redis.Client, logger *zerolog.Logger) domain.TaskQueue {
	memory := repository.NewMemoryTaskQueue(memoryQueueSize)
	if client == nil {
		return memory
	}
	return repository.NewFailoverTaskQueue(repository.NewRedisTaskQueue(client), memory, logging.Component(logger, "queue"))
}

func initAuditSheet(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.AuditSheet {
	if cfg.Google.CredentialsFile == "" || cfg.Google.AuditSpreadsheetID == "" {
		return nil
	}

	sheetLogger := logging.Component(logger, "google-sheets")
	audit, err := google.NewAuditSheet(ctx, cfg.Google.CredentialsFile, cfg.Google.AuditSpreadsheetID, cfg.Google.AuditSheetName, sheetLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without audit mirror")
		return nil
	}
	if err := audit.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("audit spreadsheet is not reachable, share it with the service account")
		return nil
	}
	if err := audit.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("audit sheet header check failed")
	}

	logger.Info().Msg("google sheets connected")
	return audit
}

func initDeliverer(cfg *config.Config, logger *zerolog.Logger) domain.Deliverer {
	if cfg.Notifications.TelegramToken == "" {
		return notify.NewLogDeliverer(logging.Component(logger, "deliverer"))
	}
	bot, err := notify.NewTelegramBot(cfg.Notifications.TelegramToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications go to log")
		return notify.NewLogDeliverer(logging.Component(logger, "deliverer"))
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram connected")
	return notify.NewTelegramDeliverer(bot)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
