// Package app собирает и запускает сервис витрины: публичный HTTP API,
// служебный сервер метрик и health-проверок и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/rest"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает приложение и блокируется до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	storage, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := storage.close(); closeErr != nil {
			logger.WithError(closeErr).Warn("failed to close storage")
		}
	}()

	deps := NewDependencies(cfg, storage, logger)
	defer closeKafka(deps.KafkaProducer, logger)

	apiServer := rest.NewServer(
		deps.Coordinator,
		storage.checkout,
		storage.products,
		storage.coupons,
		storage.timeline,
		storage.idempotency,
		deps.Gateway,
		logger.WithField("component", "rest"),
	)

	healthRegistry := healthcheck.NewRegistry(version.Current().String())
	healthRegistry.Register("storage", func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return storage.ping(checkCtx)
	})

	opsServer := startOpsServer(cfg.MetricsAddr, logger, healthRegistry)

	// Фоновые воркеры: публикация outbox и очистка idempotency-ключей.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workers sync.WaitGroup

	outboxWorker := newOutboxWorker(cfg, deps, logger)
	workers.Add(1)
	go func() {
		defer workers.Done()
		outboxWorker.Run(workerCtx)
	}()

	cleanupWorker := idempotency.NewCleanupWorker(
		storage.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanupWorker.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("storefront api listening")
		errCh <- apiServer.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown with error")
		}
		shutdownHTTP(opsServer, logger)
		stopWorkers()
		workers.Wait()
		return ctx.Err()

	case err := <-errCh:
		shutdownHTTP(opsServer, logger)
		stopWorkers()
		workers.Wait()
		return err
	}
}

// newOutboxWorker собирает outbox worker: с Kafka события уходят в брокер
// и DLQ-топик, без Kafka — дренируются в лог.
func newOutboxWorker(cfg Config, deps *Dependencies, logger *log.Entry) *outbox.Worker {
	workerLogger := logger.WithField("component", "outbox-worker")

	options := []outbox.Option{
		outbox.WithLogger(workerLogger),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}

	if deps.KafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(deps.KafkaProducer, kafka.TopicOrderEvents)
		options = append(options, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(deps.KafkaProducer, kafka.TopicDeadLetterQueue)))
		return outbox.NewWorker(deps.Storage.outbox, publisher, options...)
	}

	return outbox.NewWorker(deps.Storage.outbox, &logPublisher{logger: workerLogger}, options...)
}

// startOpsServer запускает служебный HTTP-сервер: метрики и health-проверки.
func startOpsServer(addr string, logger *log.Entry, registry *healthcheck.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", registry)
	mux.HandleFunc("/readyz", registry.Ready)
	mux.HandleFunc("/livez", healthcheck.Liveness)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.WithField("addr", addr).Info("ops server listening: /metrics, /healthz, /readyz, /livez")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("ops server failed")
		}
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("ops server shutdown with error")
	}
}
