package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// TryClaimRecord atomically inserts a claimed record for the (message,
// consumer) pair. The composite primary key makes concurrent inserts race at
// the database; exactly one wins. On a lost race the existing record is
// fetched and returned with inserted=false.
func (r *PostgresRepo) TryClaimRecord(ctx context.Context, messageID, consumerName string) (bool, *model.ProcessingRecord, error) {
	record := model.ProcessingRecord{
		MessageID:    messageID,
		ConsumerName: consumerName,
		Status:       model.RecordStatusClaimed,
		ClaimedAt:    utils.Now(),
	}

	startTime := utils.Now()
	err := r.db.WithContext(ctx).Create(&record).Error
	observer.ObserveDbOperationDuration("claim", "processing_record", time.Since(startTime), err)

	if err == nil {
		logger.FromContext(ctx).Debug("Claimed processing record",
			zap.String("message_id", messageID),
			zap.String("consumer", consumerName))
		return true, &record, nil
	}

	if !isUniqueViolation(err) {
		return false, nil, checkConstraintViolation(err)
	}

	// Lost the race; the winner's row tells us whether the message is still
	// in flight or already processed.
	existing, getErr := r.GetRecord(ctx, messageID, consumerName)
	if getErr != nil {
		if errors.Is(getErr, apperrors.ErrNotFound) {
			// Winner's claim was reset between our insert and read. Treat as
			// a duplicate without a prior result; redelivery will re-claim.
			return false, nil, nil
		}
		return false, nil, getErr
	}
	return false, existing, nil
}

// GetRecord fetches the record for a (message, consumer) pair.
func (r *PostgresRepo) GetRecord(ctx context.Context, messageID, consumerName string) (*model.ProcessingRecord, error) {
	var record model.ProcessingRecord

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("message_id = ? AND consumer_name = ?", messageID, consumerName).
			First(&record).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "GetRecord", operation)
	observer.ObserveDbOperationDuration("get", "processing_record", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, checkConstraintViolation(err)
	}
	return &record, nil
}

// MarkRecordProcessed transitions a claimed record to processed and stores
// the durable result string.
func (r *PostgresRepo) MarkRecordProcessed(ctx context.Context, messageID, consumerName, result string) error {
	now := utils.Now()

	operation := func() error {
		res := r.db.WithContext(ctx).
			Model(&model.ProcessingRecord{}).
			Where("message_id = ? AND consumer_name = ?", messageID, consumerName).
			Updates(map[string]interface{}{
				"status":       model.RecordStatusProcessed,
				"result":       result,
				"processed_at": now,
			})
		if res.Error != nil {
			return checkConstraintViolation(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "MarkRecordProcessed Commit", operation)
	observer.ObserveDbOperationDuration("update", "processing_record", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to mark record processed",
			zap.String("message_id", messageID),
			zap.Error(err))
		return err
	}
	return nil
}

// ResetRecord deletes the claim so the next delivery of the message is
// admitted as new. Missing rows are not an error.
func (r *PostgresRepo) ResetRecord(ctx context.Context, messageID, consumerName string) error {
	operation := func() error {
		res := r.db.WithContext(ctx).
			Where("message_id = ? AND consumer_name = ?", messageID, consumerName).
			Delete(&model.ProcessingRecord{})
		return res.Error
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "ResetRecord Commit", operation)
	observer.ObserveDbOperationDuration("delete", "processing_record", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to reset processing record",
			zap.String("message_id", messageID),
			zap.Error(err))
		return checkConstraintViolation(err)
	}
	return nil
}

// OldestClaimAge returns the age of the oldest record still in the claimed
// state for one consumer, or nil when no live claim exists. A claim that
// stays old signals a delivery stuck between Admit and resolution.
func (r *PostgresRepo) OldestClaimAge(ctx context.Context, consumerName string) (*time.Duration, error) {
	// min() yields SQL NULL when no row matches, so scan through NullTime.
	var oldest sql.NullTime

	operation := func() error {
		return r.db.WithContext(ctx).
			Model(&model.ProcessingRecord{}).
			Where("consumer_name = ? AND status = ?", consumerName, model.RecordStatusClaimed).
			Select("min(claimed_at)").
			Scan(&oldest).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "OldestClaimAge", operation)
	observer.ObserveDbOperationDuration("stats", "processing_record", time.Since(startTime), err)

	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	if !oldest.Valid || oldest.Time.IsZero() {
		return nil, nil
	}
	age := utils.Now().Sub(oldest.Time)
	return &age, nil
}

// CountProcessedRecords returns the number of records in the processed state
// for one consumer.
func (r *PostgresRepo) CountProcessedRecords(ctx context.Context, consumerName string) (int64, error) {
	var count int64

	operation := func() error {
		return r.db.WithContext(ctx).
			Model(&model.ProcessingRecord{}).
			Where("consumer_name = ? AND status = ?", consumerName, model.RecordStatusProcessed).
			Count(&count).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "CountProcessedRecords", operation)
	observer.ObserveDbOperationDuration("count", "processing_record", time.Since(startTime), err)

	if err != nil {
		return 0, checkConstraintViolation(err)
	}
	return count, nil
}
