package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/config"
	internal_js "gitlab.com/nortide/api/order-idempotency-service/internal/jetstream"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/internal/usecase"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
)

const (
	defaultMsgChanCap = 100
	fetchBatchSize    = 10
	fetchMaxWait      = 5 * time.Second
	sourceStream      = "stream"
)

// Worker pulls order messages from JetStream and runs each delivery through
// the consumer service on a bounded goroutine pool. Acknowledgement follows
// the error classification: settled deliveries are ACKed, fatal ones are
// terminated, transient failures are NAKed with exponential backoff.
type Worker struct {
	cfg      *config.Config
	logger   *zap.Logger
	js       internal_js.ClientInterface
	pool     *ants.Pool
	consumer *usecase.ConsumerService
	business usecase.BusinessFunc
	msgCh    chan *nats.Msg
	stopWg   sync.WaitGroup
	cancel   context.CancelFunc
}

// NewWorker creates the ingestion worker and provisions the orders stream and
// its durable pull consumer.
func NewWorker(cfg *config.Config, log *zap.Logger, jsClient internal_js.ClientInterface, consumer *usecase.ConsumerService, business usecase.BusinessFunc) (*Worker, error) {
	pool, err := ants.NewPool(cfg.NATS.Workers,
		ants.WithLogger(newAntsLoggerAdapter(log.Named("ants_pool"))),
		ants.WithPanicHandler(func(err interface{}) {
			log.Error("Worker panic caught", zap.Any("error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	setupCtx := context.Background()
	maxAge := time.Duration(cfg.NATS.MaxAgeDays) * 24 * time.Hour

	streamCfg := &nats.StreamConfig{
		Name:      cfg.NATS.Stream,
		Subjects:  []string{cfg.NATS.Subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
	}
	if err := jsClient.SetupStream(setupCtx, streamCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup orders stream '%s': %w", cfg.NATS.Stream, err)
	}
	log.Info("Orders stream setup complete", zap.String("stream", cfg.NATS.Stream))

	consumerCfg := &nats.ConsumerConfig{
		Durable:       cfg.NATS.Consumer,
		FilterSubject: cfg.NATS.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    cfg.NATS.MaxDeliver,
		AckWait:       cfg.NATS.AckWait,
		MaxAckPending: cfg.NATS.MaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
	if err := jsClient.SetupConsumer(setupCtx, cfg.NATS.Stream, consumerCfg); err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to setup consumer '%s' for stream '%s': %w", cfg.NATS.Consumer, cfg.NATS.Stream, err)
	}
	log.Info("Orders consumer setup complete", zap.String("consumer", cfg.NATS.Consumer))

	worker := &Worker{
		cfg:      cfg,
		logger:   log.Named("ingest_worker"),
		js:       jsClient,
		pool:     pool,
		consumer: consumer,
		business: business,
		msgCh:    make(chan *nats.Msg, defaultMsgChanCap),
	}

	worker.logger.Info("Ingestion worker initialized", zap.Int("pool_size", cfg.NATS.Workers))
	return worker, nil
}

// Start begins the fetch and dispatch loops and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	derivedCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.logger.Info("Starting ingestion worker...",
		zap.String("stream", w.cfg.NATS.Stream),
		zap.String("subject", w.cfg.NATS.Subject),
		zap.String("durable_name", w.cfg.NATS.Consumer),
	)

	sub, err := w.js.SubscribePull(w.cfg.NATS.Stream, w.cfg.NATS.Subject, w.cfg.NATS.Consumer)
	if err != nil {
		w.logger.Error("Failed to create pull subscription", zap.Error(err))
		cancel()
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	w.stopWg.Add(1)
	go w.fetchMessages(derivedCtx, sub)

	w.stopWg.Add(1)
	go w.dispatchMessages(derivedCtx)

	w.logger.Info("Ingestion worker started successfully")

	<-derivedCtx.Done()
	w.logger.Info("Ingestion worker context cancelled, initiating shutdown...")
	return nil
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping ingestion worker...")
	if w.cancel != nil {
		w.cancel()
	}

	w.stopWg.Wait()
	w.logger.Info("Fetcher and dispatcher stopped")

	close(w.msgCh)
	w.pool.Release()
	w.logger.Info("Ingestion worker stopped successfully")
}

// fetchMessages pulls batches from the subscription and feeds the channel.
func (w *Worker) fetchMessages(ctx context.Context, sub *nats.Subscription) {
	defer w.stopWg.Done()
	w.logger.Info("Starting message fetcher loop...")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Fetcher loop stopping due to context cancellation")
			return
		default:
			observer.IncIngestFetchRequest()
			msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
			if err != nil {
				if err == context.Canceled || err == nats.ErrTimeout || err == nats.ErrConnectionClosed {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				observer.IncIngestFetchError()
				w.logger.Error("Fetcher loop error retrieving messages", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, msg := range msgs {
				select {
				case w.msgCh <- msg:
				case <-ctx.Done():
					w.logger.Info("Fetcher loop stopping while sending to channel")
					return
				}
			}
		}
	}
}

// dispatchMessages submits channel messages to the worker pool.
func (w *Worker) dispatchMessages(ctx context.Context) {
	defer w.stopWg.Done()
	w.logger.Info("Starting message dispatcher loop...")

	for {
		observer.SetIngestQueueLength(len(w.msgCh))
		observer.SetIngestWorkersActive(w.pool.Running())

		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher loop stopping due to context cancellation")
			return
		case msg, ok := <-w.msgCh:
			if !ok {
				w.logger.Info("Message channel closed, dispatcher loop stopping")
				return
			}
			currentMsg := msg
			err := w.pool.Submit(func() {
				taskCtx, taskCancel := context.WithTimeout(context.Background(), 1*time.Minute)
				defer taskCancel()
				w.handle(taskCtx, currentMsg)
			})
			if err != nil {
				w.logger.Error("Failed to submit task to ants pool", zap.Error(err))
				if nakErr := currentMsg.NakWithDelay(5 * time.Second); nakErr != nil {
					w.logger.Error("Failed to NAK message after pool submission error", zap.Error(nakErr))
				}
			}
		}
	}
}

// handle settles one delivery.
func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		w.logger.Error("Failed to get message metadata", zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after metadata error", zap.Error(termErr))
		}
		observer.IncIngestTerm()
		return
	}

	var orderMsg model.OrderMessage
	if err := json.Unmarshal(msg.Data, &orderMsg); err != nil {
		w.logger.Error("Failed to unmarshal order message",
			zap.Error(err),
			zap.Uint64("sequence", meta.Sequence.Stream),
			zap.String("subject", msg.Subject),
			zap.ByteString("data", msg.Data),
		)
		if termErr := msg.Term(); termErr != nil {
			w.logger.Error("Failed to terminate message after unmarshal error", zap.Error(termErr))
		}
		observer.IncIngestTerm()
		return
	}

	handlerCtx := logger.WithLogger(ctx, w.logger.With(
		zap.String("message_id", orderMsg.MessageID),
		zap.Uint64("num_delivered", meta.NumDelivered),
	))

	_, procErr := w.consumer.Process(handlerCtx, orderMsg, sourceStream, w.business)
	w.settle(handlerCtx, msg, meta, orderMsg.MessageID, procErr)
}

// settle maps the processing outcome onto the broker acknowledgement.
func (w *Worker) settle(ctx context.Context, msg *nats.Msg, meta *nats.MsgMetadata, messageID string, procErr error) {
	log := logger.FromContext(ctx)

	switch {
	case procErr == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK settled message", zap.Error(ackErr))
		}

	case apperrors.IsFatal(procErr):
		switch {
		case apperrors.IsQuarantinedError(procErr):
			log.Info("Terminating delivery of quarantined message",
				zap.String("message_id", messageID))
		case apperrors.IsAttemptsExhaustedError(procErr):
			log.Warn("Terminating delivery after final attempt",
				zap.String("message_id", messageID),
				zap.Error(procErr))
		default:
			log.Warn("Terminating unprocessable delivery",
				zap.String("message_id", messageID),
				zap.Error(procErr))
		}
		if termErr := msg.Term(); termErr != nil {
			log.Error("Failed to terminate message", zap.Error(termErr))
		}
		observer.IncIngestTerm()

	default:
		delay := calculateBackoffDelay(int(meta.NumDelivered), w.cfg.NATS.NakBaseDelay, w.cfg.NATS.NakMaxDelay)
		log.Info("Redelivering message with backoff",
			zap.String("message_id", messageID),
			zap.Uint64("num_delivered", meta.NumDelivered),
			zap.Duration("delay", delay),
			zap.Error(procErr))
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		} else {
			observer.IncIngestNak()
		}
	}
}

// calculateBackoffDelay doubles the base delay per prior delivery, capped.
func calculateBackoffDelay(numDelivered int, baseDelay, maxDelay time.Duration) time.Duration {
	if numDelivered <= 1 {
		return baseDelay
	}

	delay := baseDelay * time.Duration(1<<uint(numDelivered-1))
	if delay > maxDelay || delay < baseDelay {
		delay = maxDelay
	}
	return delay
}

// --- Ants Logger Adapter ---

type antsLoggerAdapter struct {
	logger *zap.Logger
}

func newAntsLoggerAdapter(logger *zap.Logger) *antsLoggerAdapter {
	return &antsLoggerAdapter{logger: logger}
}

func (a *antsLoggerAdapter) Printf(format string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
