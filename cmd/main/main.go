package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/config"
	"gitlab.com/nortide/api/order-idempotency-service/internal/httpapi"
	"gitlab.com/nortide/api/order-idempotency-service/internal/ingestion"
	"gitlab.com/nortide/api/order-idempotency-service/internal/jetstream"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
	"gitlab.com/nortide/api/order-idempotency-service/internal/usecase"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting order idempotency service",
		zap.String("environment", cfg.Environment),
		zap.String("consumer", cfg.Processing.ConsumerName),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := storage.NewPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := jetstream.NewClient(cfg.NATS.URL)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	// Repository adapters
	recordRepo := storage.NewRecordRepoAdapter(postgresRepo)
	deadLetterRepo := storage.NewDeadLetterRepoAdapter(postgresRepo)
	duplicateRepo := storage.NewDuplicateRepoAdapter(postgresRepo)
	orderRepo := storage.NewOrderRepoAdapter(postgresRepo)

	// Core services
	tracker := usecase.NewAttemptTracker(cfg.Processing.MaxAttempts)
	guard := usecase.NewIdempotencyGuard(recordRepo, deadLetterRepo, duplicateRepo, tracker)
	consumer := usecase.NewConsumerService(guard, cfg.Processing.ConsumerName, cfg.Processing.Timeout)
	manager := usecase.NewDeadLetterManager(deadLetterRepo, recordRepo, tracker)
	stats := usecase.NewStatsService(recordRepo, duplicateRepo, orderRepo, deadLetterRepo, cfg.Processing.ConsumerName)
	processor := usecase.NewOrderProcessor(orderRepo)

	worker, err := ingestion.NewWorker(cfg, logger.Log, jsClient, consumer, processor.Process)
	if err != nil {
		logger.Log.Fatal("Failed to initialize ingestion worker", zap.Error(err))
	}

	readiness := func(ctx context.Context) error {
		if !jsClient.NatsConn().IsConnected() {
			return fmt.Errorf("nats not connected")
		}
		return nil
	}
	apiServer := httpapi.NewServer(cfg, logger.Log, orderRepo, manager, stats, jsClient, readiness)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()
	sigChan := make(chan os.Signal, 1)

	go func() {
		if err := worker.Start(mainCtx); err != nil {
			logger.Log.Error("Ingestion worker failed, initiating shutdown...", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
				logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
			}
		}
	}()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Log.Error("HTTP API server failed, initiating shutdown...", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
				logger.Log.Warn("Could not send SIGTERM to signal channel immediately")
			}
		}
	}()

	logger.Log.Info("Service endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api", fmt.Sprintf("http://localhost:%d/api", cfg.Server.Port)),
	)

	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(3)

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping ingestion worker")
		start := time.Now()
		worker.Stop()
		logger.Log.Info("[shutdown] Ingestion worker stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping ingestion worker",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP API server")
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] HTTP API server shutdown error", zap.Error(err))
		}
		logger.Log.Info("[shutdown] HTTP API server stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP API server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing database connection")
		start := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Database close error", zap.Error(err))
		}
		logger.Log.Info("[shutdown] Database connection closed",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing database",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait for components or time out
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info("Graceful shutdown complete")
	case <-shutdownCtx.Done():
		logger.Log.Warn("Graceful shutdown timed out, forcing exit")
	}

	jsClient.Close()
	logger.Log.Info("Service stopped")
}
