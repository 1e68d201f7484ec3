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
	"syscall"
	"time"

	"hallbook/internal/api"
	"hallbook/internal/availability"
	"hallbook/internal/config"
	"hallbook/internal/database"
	"hallbook/internal/domain"
	"hallbook/internal/events"
	"hallbook/internal/export"
	"hallbook/internal/logging"
	"hallbook/internal/metrics"
	"hallbook/internal/repository"
	"hallbook/internal/service"
	"hallbook/internal/worker"

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
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	db, err := database.NewDB(cfg.Database.Path, baseLogger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	halls := service.NewHallService(db, baseLogger)
	if err := halls.SyncHalls(ctx, cfg.Halls); err != nil {
		return fmt.Errorf("sync halls: %w", err)
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	cache := initCalendarCache(cfg, redisClient, baseLogger)

	notifications := worker.NewNotificationWorker(
		db,
		worker.NewLogNotifier(baseLogger),
		redisClient,
		worker.RetryPolicy{MaxRetries: cfg.Notifications.MaxRetries},
		worker.Options{
			NotifyEnabled: cfg.Notifications.Enabled,
			QueueKey:      cfg.Notifications.QueueKey,
			PollInterval:  cfg.Notifications.PollInterval,
		},
		baseLogger,
	)

	bus := events.NewEventBus(baseLogger)

	bookings, err := service.NewBookingService(
		db,
		db,
		availability.NewEngine(cfg.Booking.MaxBookingDays, baseLogger),
		cache,
		bus,
		export.NewExporter(cfg.Exports.Path, baseLogger),
		cfg.Booking,
		baseLogger,
	)
	if err != nil {
		return fmt.Errorf("init booking service: %w", err)
	}
	bus.SubscribeAll(invalidateOnChange(bookings, &logger))
	bus.SubscribeAll(notifications.HandleEvent)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go notifications.Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(baseLogger, "backup")).Start(ctx)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config; only background workers are running")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, baseLogger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, db.Health, 15*time.Second)
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, bookings, halls, db.Health, baseLogger)
	}

	return startServers(ctx, grpcServer, httpServer, &logger)
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

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCalendarCache prefers Redis and keeps an in-process copy for when it is unreachable.
func initCalendarCache(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.CalendarCache {
	memory := repository.NewMemoryCalendarCache(cfg.Booking.CalendarCacheTTL)
	if client == nil {
		return memory
	}
	return repository.NewFailoverCalendarCache(
		repository.NewRedisCalendarCache(client, cfg.Booking.CalendarCacheTTL),
		memory,
		logging.Component(logger, "calendar-cache"),
	)
}

// invalidateOnChange drops cached calendars of every hall an event touched.
func invalidateOnChange(bookings *service.BookingService, logger *zerolog.Logger) events.EventHandler {
	return func(event *events.Event) error {
		payload, err := event.Decode()
		if err != nil {
			return fmt.Errorf("decode %s event: %w", event.Type, err)
		}

		halls := payload.Halls
		if len(halls) == 0 {
			halls = []string{payload.Hall}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var errs []error
		for _, hall := range halls {
			if err := bookings.InvalidateCalendar(ctx, hall); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			logger.Warn().Int64("booking_id", payload.BookingID).Msg("calendar invalidation incomplete")
		}
		return errors.Join(errs...)
	}
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	if httpServer != nil {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().Bool("grpc", grpcServer != nil).Bool("http", httpServer != nil).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
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
