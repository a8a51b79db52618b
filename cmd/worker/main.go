package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/dispute-retrieval/internal/bootstrap"
	"github.com/kirillkom/dispute-retrieval/internal/config"
	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/observability/logging"
)

const (
	serviceName   = "dispute-worker"
	recordTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg, logger, serviceName)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           worker.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = worker.Queue.SubscribeRetrievalLogs(ctx, func(handlerCtx context.Context, event domain.RetrievalLog) error {
		worker.Metrics.StartEvent()
		if !event.CreatedAt.IsZero() {
			worker.Metrics.ObserveEventLag(serviceName, time.Since(event.CreatedAt))
		}

		recordCtx, cancel := context.WithTimeout(handlerCtx, recordTimeout)
		defer cancel()
		start := time.Now()
		err := worker.Recorder.Record(recordCtx, event)
		worker.Metrics.FinishEvent(serviceName, time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
