package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// TryAdmitDeadLetter inserts a pending dead-letter entry. The partial unique
// index on pending entries makes concurrent admits for the same message race
// at the database; the loser reports admitted=false and inserts nothing.
func (r *PostgresRepo) TryAdmitDeadLetter(ctx context.Context, entry model.DeadLetterEntry) (bool, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailureTimestamp.IsZero() {
		entry.FailureTimestamp = utils.Now()
	}
	entry.Status = model.DeadLetterStatusPending

	startTime := utils.Now()
	err := r.db.WithContext(ctx).Create(&entry).Error
	observer.ObserveDbOperationDuration("admit", "dead_letter_entry", time.Since(startTime), err)

	if err == nil {
		logger.FromContext(ctx).Warn("Message quarantined",
			zap.String("message_id", entry.OriginalMessageID),
			zap.String("consumer", entry.ConsumerName),
			zap.Int("attempt", entry.AttemptNumber),
			zap.String("reason", entry.FailureReason))
		return true, nil
	}

	if isUniqueViolation(err) {
		return false, nil
	}
	return false, checkConstraintViolation(err)
}

// GetPendingDeadLetter returns the pending entry for a message id, or
// ErrNotFound when the message is not quarantined.
func (r *PostgresRepo) GetPendingDeadLetter(ctx context.Context, messageID string) (*model.DeadLetterEntry, error) {
	var entry model.DeadLetterEntry

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("original_message_id = ? AND status = ?", messageID, model.DeadLetterStatusPending).
			First(&entry).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "GetPendingDeadLetter", operation)
	observer.ObserveDbOperationDuration("get", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, checkConstraintViolation(err)
	}
	return &entry, nil
}

// GetDeadLetter fetches one entry by its id.
func (r *PostgresRepo) GetDeadLetter(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	var entry model.DeadLetterEntry

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("id = ?", id).
			First(&entry).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "GetDeadLetter", operation)
	observer.ObserveDbOperationDuration("get", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, checkConstraintViolation(err)
	}
	return &entry, nil
}

// ListDeadLetters returns entries ordered oldest failure first. An empty
// status lists every entry.
func (r *PostgresRepo) ListDeadLetters(ctx context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error) {
	var entries []model.DeadLetterEntry

	operation := func() error {
		q := r.db.WithContext(ctx).Model(&model.DeadLetterEntry{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q.Order("failure_timestamp asc").Find(&entries).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListDeadLetters", operation)
	observer.ObserveDbOperationDuration("list", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return entries, nil
}

// ResolveDeadLetter transitions a pending entry to resolved and stamps the
// resolution. Only one caller can win the pending->resolved transition; a
// second resolve reports ErrNotFound.
func (r *PostgresRepo) ResolveDeadLetter(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	now := utils.Now()

	operation := func() error {
		res := r.db.WithContext(ctx).
			Model(&model.DeadLetterEntry{}).
			Where("id = ? AND status = ?", id, model.DeadLetterStatusPending).
			Updates(map[string]interface{}{
				"status":             model.DeadLetterStatusResolved,
				"resolved_timestamp": now,
				"resolution_notes":   notes,
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
	err := retryableOperation(ctx, commitPolicy, "ResolveDeadLetter Commit", operation)
	observer.ObserveDbOperationDuration("resolve", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to resolve dead-letter entry",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, err
	}

	return r.GetDeadLetter(ctx, id)
}

// MarkDeadLetterFailed transitions a pending entry to failed. Used by
// operators to write off a message that should never be retried. Follows the
// same pending-only predicate as ResolveDeadLetter.
func (r *PostgresRepo) MarkDeadLetterFailed(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	now := utils.Now()

	operation := func() error {
		res := r.db.WithContext(ctx).
			Model(&model.DeadLetterEntry{}).
			Where("id = ? AND status = ?", id, model.DeadLetterStatusPending).
			Updates(map[string]interface{}{
				"status":             model.DeadLetterStatusFailed,
				"resolved_timestamp": now,
				"resolution_notes":   notes,
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
	err := retryableOperation(ctx, commitPolicy, "MarkDeadLetterFailed Commit", operation)
	observer.ObserveDbOperationDuration("fail", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to mark dead-letter entry as failed",
			zap.String("id", id.String()),
			zap.Error(err))
		return nil, err
	}

	return r.GetDeadLetter(ctx, id)
}

// DeadLetterStats aggregates counts per status plus the oldest pending age.
func (r *PostgresRepo) DeadLetterStats(ctx context.Context) (model.DeadLetterStats, error) {
	var stats model.DeadLetterStats

	type statusCount struct {
		Status model.DeadLetterStatus
		Count  int64
	}

	operation := func() error {
		var rows []statusCount
		if err := r.db.WithContext(ctx).
			Model(&model.DeadLetterEntry{}).
			Select("status, count(*) as count").
			Group("status").
			Scan(&rows).Error; err != nil {
			return err
		}

		stats = model.DeadLetterStats{}
		for _, row := range rows {
			stats.TotalMessages += row.Count
			switch row.Status {
			case model.DeadLetterStatusPending:
				stats.PendingMessages = row.Count
			case model.DeadLetterStatusResolved:
				stats.ResolvedMessages = row.Count
			case model.DeadLetterStatusFailed:
				stats.FailedMessages = row.Count
			}
		}

		if stats.PendingMessages > 0 {
			var oldest time.Time
			err := r.db.WithContext(ctx).
				Model(&model.DeadLetterEntry{}).
				Where("status = ?", model.DeadLetterStatusPending).
				Select("min(failure_timestamp)").
				Scan(&oldest).Error
			if err != nil {
				return err
			}
			if !oldest.IsZero() {
				age := utils.Now().Sub(oldest)
				stats.OldestPendingAge = &age
			}
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "DeadLetterStats", operation)
	observer.ObserveDbOperationDuration("stats", "dead_letter_entry", time.Since(startTime), err)

	if err != nil {
		return model.DeadLetterStats{}, checkConstraintViolation(err)
	}
	observer.SetDeadLetterPending(stats.PendingMessages)
	return stats, nil
}
