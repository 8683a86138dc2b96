package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/internal/validator"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// ConsumerService orchestrates one delivery end to end: admission through the
// guard, execution of the business function, then completion or failure
// handling. It is safe for concurrent use by the worker pool.
type ConsumerService struct {
	guard        *IdempotencyGuard
	consumerName string
	timeout      time.Duration
}

// NewConsumerService creates the orchestrator for one logical consumer.
func NewConsumerService(guard *IdempotencyGuard, consumerName string, timeout time.Duration) *ConsumerService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConsumerService{
		guard:        guard,
		consumerName: consumerName,
		timeout:      timeout,
	}
}

// ConsumerName returns the logical consumer identity used for admissions.
func (s *ConsumerService) ConsumerName() string {
	return s.consumerName
}

// Process runs one delivery through the guard and, when admitted, invokes fn.
// The returned error classification drives the caller's acknowledgement:
//   - nil: delivery is settled (processed, or replayed duplicate)
//   - FatalError: unprocessable, never redeliver (validation, quarantine)
//   - RetryableError: transient, redeliver later
func (s *ConsumerService) Process(ctx context.Context, msg model.OrderMessage, source string, fn BusinessFunc) (model.ProcessResult, error) {
	log := logger.FromContext(ctx)
	startTime := utils.Now()

	if err := validator.Validate(msg); err != nil {
		log.Warn("Rejecting malformed order message", zap.Error(err))
		observer.IncMessagesProcessed(s.consumerName, "invalid")
		return model.ProcessResult{Success: false, Message: err.Error()},
			apperrors.NewFatal(apperrors.ErrValidation, "invalid order message: %v", err)
	}

	admission, err := s.guard.Admit(ctx, msg.MessageID, s.consumerName, source)
	if err != nil {
		return model.ProcessResult{Success: false, Message: err.Error()},
			apperrors.NewRetryable(err, "admission failed for message %s", msg.MessageID)
	}

	switch admission.Outcome {
	case AdmissionDuplicate:
		observer.IncMessagesProcessed(s.consumerName, "duplicate")
		result := model.ProcessResult{
			Success:   true,
			Duplicate: true,
			Message:   admission.PriorResult,
			OrderID:   model.OrderIDFromResult(admission.PriorResult),
		}
		if result.Message == "" {
			result.Message = "duplicate delivery, processing already in flight"
		}
		return result, nil

	case AdmissionQuarantined:
		observer.IncMessagesProcessed(s.consumerName, "quarantined")
		return model.ProcessResult{Success: false, Message: apperrors.ErrQuarantined.Error()},
			apperrors.NewFatal(apperrors.ErrQuarantined, "message %s is quarantined", msg.MessageID)
	}

	// Admitted as new: run the business function with a bounded context.
	// Panics inside fn count as failed attempts, not crashed workers.
	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var result model.ProcessResult
	run := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		var ferr error
		result, ferr = fn(ctx, msg)
		return ferr
	})
	businessErr := run(execCtx)

	if businessErr == nil {
		if err := s.guard.Complete(ctx, msg.MessageID, s.consumerName, result.Message); err != nil {
			// The effect may be durable but the record still says claimed.
			// Surface as retryable; the redelivery resolves the record state.
			log.Error("Failed to finalize processing record",
				zap.String("message_id", msg.MessageID),
				zap.Error(err))
			return result, apperrors.NewRetryable(err, "failed to finalize message %s", msg.MessageID)
		}
		observer.IncMessagesProcessed(s.consumerName, "processed")
		observer.ObserveProcessingDuration(s.consumerName, time.Since(startTime))
		log.Info("Message processed",
			zap.String("message_id", msg.MessageID),
			zap.Int("attempt", admission.Attempt),
			zap.String("result", result.Message))
		return result, nil
	}

	quarantined, failErr := s.guard.Fail(ctx, msg, s.consumerName, admission.Attempt, businessErr)
	if failErr != nil {
		return model.ProcessResult{Success: false, Message: failErr.Error()},
			apperrors.NewRetryable(failErr, "failure handling broke for message %s", msg.MessageID)
	}

	observer.ObserveProcessingDuration(s.consumerName, time.Since(startTime))
	if quarantined {
		observer.IncMessagesProcessed(s.consumerName, "exhausted")
		return model.ProcessResult{Success: false, Message: businessErr.Error()},
			apperrors.NewFatal(apperrors.ErrAttemptsExhausted, "message %s failed attempt %d/%d", msg.MessageID, admission.Attempt, s.guard.MaxAttempts())
	}

	observer.IncMessagesProcessed(s.consumerName, "failed")
	return model.ProcessResult{Success: false, Message: businessErr.Error()},
		apperrors.NewRetryable(businessErr, "message %s failed attempt %d/%d", msg.MessageID, admission.Attempt, s.guard.MaxAttempts())
}
