package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// AppendDuplicateAttempt records a rejected duplicate delivery for auditing.
// Failures are logged but never block the admission decision.
func (r *PostgresRepo) AppendDuplicateAttempt(ctx context.Context, attempt model.DuplicateAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.DetectedAt.IsZero() {
		attempt.DetectedAt = utils.Now()
	}

	operation := func() error {
		return r.db.WithContext(ctx).Create(&attempt).Error
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "AppendDuplicateAttempt Commit", operation)
	observer.ObserveDbOperationDuration("append", "duplicate_attempt", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Warn("Failed to record duplicate attempt",
			zap.String("message_id", attempt.MessageID),
			zap.Error(err))
		return checkConstraintViolation(err)
	}
	return nil
}

// CountDuplicateAttempts returns the total audited duplicates for a consumer.
func (r *PostgresRepo) CountDuplicateAttempts(ctx context.Context, consumerName string) (int64, error) {
	var count int64

	operation := func() error {
		return r.db.WithContext(ctx).
			Model(&model.DuplicateAttempt{}).
			Where("consumer_name = ?", consumerName).
			Count(&count).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "CountDuplicateAttempts", operation)
	observer.ObserveDbOperationDuration("count", "duplicate_attempt", time.Since(startTime), err)

	if err != nil {
		return 0, checkConstraintViolation(err)
	}
	return count, nil
}
