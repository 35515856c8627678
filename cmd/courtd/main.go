package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"court-booking-backend/config"
	"court-booking-backend/internal/api"
	"court-booking-backend/internal/availability"
	"court-booking-backend/internal/bookingapi"
	"court-booking-backend/internal/checkout"
	"court-booking-backend/internal/db"
	"court-booking-backend/internal/events"
	"court-booking-backend/internal/logging"
	"court-booking-backend/internal/notification"
	"court-booking-backend/internal/slots"
	"court-booking-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("path", configPath),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("realtime", cfg.Realtime.Driver),
		zap.Duration("poll_interval", cfg.Refresh.PollInterval),
		zap.Duration("hold_window", cfg.Checkout.HoldWindow),
		zap.Strings("defaults", cfg.Defaulted),
	)

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel, closeChannel, err := newChannel(ctx, cfg.Realtime, logger)
	if err != nil {
		logger.Fatal("failed to set up realtime channel", zap.Error(err))
	}
	defer closeChannel()

	client := bookingapi.NewClient(cfg.Backend, logger)

	var webpushOptions *webpush.Options
	registryOpts := availability.RegistryOptions{
		TopicPrefix:  cfg.Realtime.TopicPrefix,
		PollInterval: cfg.Refresh.PollInterval,
		IdleTTL:      cfg.Refresh.IdleTTL,
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, client, webpushOptions, logger)
		pool.Start(ctx)
		registryOpts.OnChange = func(venueID string, prev, next availability.Snapshot) {
			for _, key := range slots.Freed(prev.Bookings, prev.Holds, next.Bookings, next.Holds) {
				pool.Dispatch(store.Slot{VenueID: venueID, Date: next.Date, CourtID: key.CourtID, StartTime: key.StartTime})
			}
		}
	} else {
		logger.Warn("VAPID keys are not configured, slot notifications are disabled")
	}

	registry := availability.NewRegistry(ctx, client, channel, registryOpts, logger)
	defer registry.Close()

	holds := checkout.NewManager(client, checkout.ManagerOptions{
		HoldWindow: cfg.Checkout.HoldWindow,
		Tick:       cfg.Checkout.Tick,
		OnTerminal: api.HoldFinished(appStore, channel, cfg.Realtime.TopicPrefix, logger),
	}, logger)
	go holds.Run(ctx)

	handler := api.NewHandler(api.Deps{
		Store:       appStore,
		WebPush:     webpushOptions,
		Backend:     client,
		Registry:    registry,
		Holds:       holds,
		Channel:     channel,
		Logger:      logger,
		TopicPrefix: cfg.Realtime.TopicPrefix,
		Tick:        cfg.Checkout.Tick,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server, cfg.Session),
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server gracefully stopped")
}

// newChannel builds the configured event channel and its cleanup.
func newChannel(ctx context.Context, cfg config.RealtimeConfig, logger *zap.Logger) (events.Channel, func(), error) {
	switch cfg.Driver {
	case "memory":
		return events.NewHub(), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return events.NewRedisChannel(rdb, logger), func() { rdb.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown realtime driver %q", cfg.Driver)
	}
}
