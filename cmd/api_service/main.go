package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	emailapp "github.com/mailflowhq/mailflow/internal/email_service/app"
	emailrepo "github.com/mailflowhq/mailflow/internal/email_service/repository/postgres"
	"github.com/mailflowhq/mailflow/internal/email_service/queue"
	"github.com/mailflowhq/mailflow/internal/notifier"
	"github.com/mailflowhq/mailflow/internal/platform/config"
	"github.com/mailflowhq/mailflow/internal/platform/database"
	"github.com/mailflowhq/mailflow/internal/platform/logger"
	"github.com/mailflowhq/mailflow/internal/platform/messagebroker"
	httptransport "github.com/mailflowhq/mailflow/internal/public_api/transport/http"
	"github.com/mailflowhq/mailflow/internal/ratelimit"
	userapp "github.com/mailflowhq/mailflow/internal/user_service/app"
	userrepo "github.com/mailflowhq/mailflow/internal/user_service/repository/postgres"
)

const (
	serviceName     = "api_service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(serviceName, cfg.LogLevel)
	appLogger.Info("API service starting...", "port", cfg.ServerPort)

	mainCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Connected to NATS")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(mainCtx).Err(); err != nil {
		// The limiter can fail open; scheduling still needs Redis via
		// asynq, so surface the problem loudly but keep starting.
		appLogger.Error("Redis ping failed", "error", err)
	}

	queueClient := queue.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.QueueName, appLogger)
	defer queueClient.Close()

	// Repositories and services.
	emailRepository := emailrepo.NewPgEmailRepository(dbPool, appLogger)
	templateRepository := emailrepo.NewPgTemplateRepository(dbPool, appLogger)
	userRepository := userrepo.NewPgUserRepository(dbPool, appLogger)

	authService := userapp.NewAuthService(userRepository, userapp.AuthConfig{
		JWTSecret:      cfg.JWTSecret,
		JWTExpiryHours: cfg.JWTExpiryHours,
	}, appLogger)
	googleService := userapp.NewGoogleOAuthService(userRepository, authService, userapp.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, appLogger)
	scheduleService := emailapp.NewScheduleService(emailRepository, queueClient, appLogger)

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisStore(redisClient),
		time.Duration(cfg.RateLimitWindowMs)*time.Millisecond,
		cfg.RateLimitMaxRequests,
		cfg.RateLimitFailOpen,
		appLogger,
	)

	// WebSocket hub fed by the worker's NATS events.
	hub := notifier.NewHub(appLogger)
	listener := notifier.NewListener(hub, natsClient, appLogger)
	if err := listener.Start(); err != nil {
		appLogger.Error("Failed to start job event listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop()
	defer hub.CloseAll()

	// HTTP surface.
	authHandler := httptransport.NewAuthHandler(authService, googleService, cfg.ClientURL, appLogger)
	emailHandler := httptransport.NewEmailHandler(scheduleService, emailRepository, queueClient, limiter, appLogger)
	templateHandler := httptransport.NewTemplateHandler(templateRepository, appLogger)
	analyticsHandler := httptransport.NewAnalyticsHandler(emailRepository, appLogger)
	wsHandler := httptransport.NewWSHandler(hub, authService, cfg.ClientURL, appLogger)

	router := httptransport.NewRouter(authHandler, emailHandler, templateHandler, analyticsHandler, wsHandler, authService, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("API service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("API service shut down gracefully")
}
