package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
)

const retryResolutionNotes = "Ready for retry"

// DeadLetterManager exposes operator workflows over quarantined messages:
// inspection, statistics and manual retry.
type DeadLetterManager struct {
	deadLetters storage.DeadLetterRepo
	records     storage.RecordRepo
	tracker     *AttemptTracker
}

// NewDeadLetterManager creates a new manager.
func NewDeadLetterManager(
	deadLetters storage.DeadLetterRepo,
	records storage.RecordRepo,
	tracker *AttemptTracker,
) *DeadLetterManager {
	return &DeadLetterManager{
		deadLetters: deadLetters,
		records:     records,
		tracker:     tracker,
	}
}

// List returns entries filtered by status, oldest failure first. An empty
// status lists everything.
func (m *DeadLetterManager) List(ctx context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error) {
	return m.deadLetters.List(ctx, status)
}

// Get fetches one entry.
func (m *DeadLetterManager) Get(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	return m.deadLetters.Get(ctx, id)
}

// Stats aggregates counts per status.
func (m *DeadLetterManager) Stats(ctx context.Context) (model.DeadLetterStats, error) {
	return m.deadLetters.Stats(ctx)
}

// Retry marks a pending entry resolved and clears the message's claim and
// attempt count, so the next delivery is admitted as brand new. Pending to
// resolved flips exactly once; a concurrent second retry gets ErrNotFound.
func (m *DeadLetterManager) Retry(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	entry, err := m.deadLetters.Resolve(ctx, id, retryResolutionNotes)
	if err != nil {
		return nil, err
	}

	key := AttemptKey{MessageID: entry.OriginalMessageID, ConsumerName: entry.ConsumerName}
	m.tracker.Clear(key)

	// Drop any stale claim left behind by the quarantined run.
	if err := m.records.Reset(ctx, entry.OriginalMessageID, entry.ConsumerName); err != nil {
		logger.FromContext(ctx).Warn("Failed to reset record during retry",
			zap.String("message_id", entry.OriginalMessageID),
			zap.Error(err))
	}

	observer.IncDeadLetterRetry()
	logger.FromContext(ctx).Info("Dead-letter entry released for retry",
		zap.String("id", id.String()),
		zap.String("message_id", entry.OriginalMessageID))
	return entry, nil
}

// MarkFailed writes off a pending entry permanently. Unlike Retry it does
// not clear the attempt counter; it only finalizes the entry, which is kept
// for audit and counted under failed in the statistics.
func (m *DeadLetterManager) MarkFailed(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	entry, err := m.deadLetters.MarkFailed(ctx, id, notes)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Dead-letter entry written off",
		zap.String("id", id.String()),
		zap.String("message_id", entry.OriginalMessageID),
		zap.String("notes", notes))
	return entry, nil
}
