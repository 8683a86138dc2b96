package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/config"
	"gitlab.com/nortide/api/order-idempotency-service/internal/jetstream"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
)

// PublishTask describes one message to publish: either a fresh order or a
// replay of a previously published message ID.
type PublishTask struct {
	Subject   string
	Message   model.OrderMessage
	Duplicate bool
}

// BatchTask represents a batch of messages handed to one pool worker.
type BatchTask struct {
	Tasks      []PublishTask
	NatsClient jetstream.ClientInterface
}

const defaultBatchSize = 50

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	natsURL := flag.String("url", cfg.NATS.URL, "NATS server URL")
	subject := flag.String("subject", cfg.NATS.Subject, "NATS subject for order messages")
	rate := flag.Int("rate", 100, "Target messages per second")
	duration := flag.Duration("duration", 1*time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent publish workers")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Number of messages per worker batch")
	duplicateRatio := flag.Float64("duplicate-ratio", 0.3, "Fraction of messages that replay an already-published message ID")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Order Message Load Generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Publishes order messages to NATS, mixing in duplicate deliveries to exercise idempotent consumption.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
		fmt.Printf("Invalid batch size, using default: %d\n", defaultBatchSize)
	}
	if *duplicateRatio < 0 || *duplicateRatio > 1 {
		fmt.Printf("Invalid duplicate ratio %v, using default: 0.3\n", *duplicateRatio)
		*duplicateRatio = 0.3
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		logger.Log.Info("Shutting down metrics server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting order message load generator",
		zap.String("nats_url", *natsURL),
		zap.String("subject", *subject),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.Float64("duplicate_ratio", *duplicateRatio),
		zap.Int("metrics_port", *metricsPort),
	)

	natsClient, err := jetstream.NewClient(*natsURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer natsClient.Close()
	logger.Log.Info("Connected to NATS", zap.String("url", *natsURL))

	gofakeit.Seed(time.Now().UnixNano())
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		batchWorkerFunc(data, &wg)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	logger.Log.Info("Worker pool initialized", zap.Int("size", *concurrency))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var loopWg sync.WaitGroup
	loopWg.Add(1)
	go runBatchLoadLoop(ctx, loopParams{
		rate:           *rate,
		duration:       *duration,
		batchSize:      *batchSize,
		subject:        *subject,
		duplicateRatio: *duplicateRatio,
	}, rng, natsClient, pool, &wg, &loopWg)

	// Unblock the signal wait once the loop finishes on its own.
	go func() {
		loopWg.Wait()
		cancel()
	}()

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
		logger.Log.Info("Load generation finished or context cancelled externally.")
	}

	logger.Log.Info("Waiting for load generation loop to finish submitting tasks...")
	loopWg.Wait()

	logger.Log.Info("Waiting for active publishing tasks to complete...")
	wg.Wait()

	cancel()
	metricsWg.Wait()

	logger.Log.Info("Load generator shutdown complete.")
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()
	return server
}

type loopParams struct {
	rate           int
	duration       time.Duration
	batchSize      int
	subject        string
	duplicateRatio float64
}

// runBatchLoadLoop submits rate-limited batches to the worker pool. A
// sliding window of recently published message IDs feeds duplicate replays.
func runBatchLoadLoop(ctx context.Context, p loopParams, rng *rand.Rand, nc jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup, loopWg *sync.WaitGroup) {
	defer loopWg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(p.rate))
	defer ticker.Stop()

	durationTimer := time.NewTimer(p.duration)
	defer durationTimer.Stop()

	const replayWindow = 256
	recent := make([]model.OrderMessage, 0, replayWindow)

	currentBatch := make([]PublishTask, 0, p.batchSize)

	logger.Log.Info("Starting batch load generation loop",
		zap.Int("target_rate_per_sec", p.rate),
		zap.Duration("duration", p.duration),
		zap.Int("batch_size", p.batchSize),
	)

	submitBatch := func(batchToSubmit []PublishTask) {
		if len(batchToSubmit) == 0 {
			return
		}
		batchData := BatchTask{
			Tasks:      batchToSubmit,
			NatsClient: nc,
		}
		wg.Add(len(batchToSubmit))
		if err := pool.Invoke(batchData); err != nil {
			logger.Log.Warn("Failed to invoke worker pool for batch",
				zap.Int("batch_task_count", len(batchToSubmit)), zap.Error(err))
			wg.Add(-len(batchToSubmit))
			for _, task := range batchToSubmit {
				observer.IncLoadgenPublishErrors(task.Subject, taskKind(task))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Load generation loop stopping due to context cancellation. Submitting final partial batch...")
			submitBatch(currentBatch)
			return
		case <-durationTimer.C:
			logger.Log.Info("Load generation loop stopping after specified duration. Submitting final partial batch...")
			submitBatch(currentBatch)
			return
		case <-ticker.C:
			select {
			case <-ctx.Done():
				return
			default:
			}

			task := PublishTask{Subject: p.subject}
			if len(recent) > 0 && rng.Float64() < p.duplicateRatio {
				task.Message = recent[rng.Intn(len(recent))]
				task.Duplicate = true
			} else {
				task.Message = newOrderMessage()
				if len(recent) < replayWindow {
					recent = append(recent, task.Message)
				} else {
					recent[rng.Intn(replayWindow)] = task.Message
				}
			}

			observer.IncLoadgenMessagesAttempted(task.Subject, taskKind(task))
			currentBatch = append(currentBatch, task)

			if len(currentBatch) >= p.batchSize {
				submitBatch(currentBatch)
				currentBatch = make([]PublishTask, 0, p.batchSize)
			}
		}
	}
}

// batchWorkerFunc publishes every task in a batch.
func batchWorkerFunc(data interface{}, wg *sync.WaitGroup) {
	batchTask := data.(BatchTask)

	for _, task := range batchTask.Tasks {
		func(t PublishTask) {
			defer wg.Done()

			payloadBytes, err := json.Marshal(t.Message)
			if err != nil {
				logger.Log.Error("Failed to marshal order message",
					zap.String("message_id", t.Message.MessageID),
					zap.Error(err))
				observer.IncLoadgenPublishErrors(t.Subject, taskKind(t))
				return
			}

			headers := map[string]string{"Nats-Msg-Id": t.Message.MessageID}
			if err := batchTask.NatsClient.Publish(t.Subject, payloadBytes, headers); err != nil {
				logger.Log.Error("Failed to publish order message",
					zap.String("subject", t.Subject),
					zap.String("message_id", t.Message.MessageID),
					zap.Error(err))
				observer.IncLoadgenPublishErrors(t.Subject, taskKind(t))
			} else {
				observer.IncLoadgenMessagesPublished(t.Subject, taskKind(t))
			}
		}(task)
	}
}

func newOrderMessage() model.OrderMessage {
	return model.OrderMessage{
		MessageID:    uuid.NewString(),
		CustomerName: gofakeit.Name(),
		Amount:       gofakeit.Price(5, 500),
		Timestamp:    time.Now().UTC(),
	}
}

func taskKind(t PublishTask) string {
	if t.Duplicate {
		return "duplicate"
	}
	return "new"
}
