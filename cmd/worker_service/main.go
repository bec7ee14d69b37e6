package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mailflowhq/mailflow/internal/email_service/app"
	"github.com/mailflowhq/mailflow/internal/email_service/mailer"
	"github.com/mailflowhq/mailflow/internal/email_service/queue"
	emailrepo "github.com/mailflowhq/mailflow/internal/email_service/repository/postgres"
	"github.com/mailflowhq/mailflow/internal/platform/config"
	"github.com/mailflowhq/mailflow/internal/platform/database"
	"github.com/mailflowhq/mailflow/internal/platform/logger"
	"github.com/mailflowhq/mailflow/internal/platform/messagebroker"
)

const (
	serviceName     = "worker_service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(serviceName, cfg.LogLevel)
	appLogger.Info("Worker service starting...",
		"queue", cfg.QueueName, "concurrency", cfg.QueueConcurrency)

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

	transport, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  time.Duration(cfg.SendTimeoutSeconds) * time.Second,
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to build SMTP transport", "error", err)
		os.Exit(1)
	}

	emailRepository := emailrepo.NewPgEmailRepository(dbPool, appLogger)
	worker := app.NewDispatchWorker(emailRepository, transport, natsClient, appLogger)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency:    cfg.QueueConcurrency,
		Queues:         map[string]int{cfg.QueueName: 1},
		RetryDelayFunc: queue.RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			appLogger.ErrorContext(ctx, "Task processing failed", "error", err, "type", task.Type())
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeDeliver, worker.HandleDeliver)

	// Prometheus endpoint for the worker process.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerMetricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("Worker consuming delivery jobs", "queue", cfg.QueueName)
		if err := srv.Run(mux); err != nil {
			return fmt.Errorf("asynq server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Worker metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, stopping worker...")
		srv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Worker service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Worker service shut down gracefully")
}
