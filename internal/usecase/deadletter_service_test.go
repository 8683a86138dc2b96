package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
)

func quarantine(t *testing.T, h *testHarness, messageID string) model.DeadLetterEntry {
	t.Helper()
	msg := testOrderMessage(messageID)
	admitted, err := h.deadLetters.TryAdmit(context.Background(), model.DeadLetterEntry{
		OriginalMessageID: msg.MessageID,
		ConsumerName:      guardConsumer,
		PayloadSnapshot:   msg.Snapshot(),
		AttemptNumber:     3,
		FailureReason:     "persistent failure",
	})
	require.NoError(t, err)
	require.True(t, admitted)
	entry, err := h.deadLetters.GetPending(context.Background(), messageID)
	require.NoError(t, err)
	return *entry
}

func TestDeadLetterRetry_ResolvesAndClearsState(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)
	ctx := context.Background()
	entry := quarantine(t, h, "msg-retry")

	// Simulate leftovers from the failed run.
	h.tracker.Increment(AttemptKey{MessageID: entry.OriginalMessageID, ConsumerName: guardConsumer})
	_, _, err := h.records.TryClaim(ctx, entry.OriginalMessageID, guardConsumer)
	require.NoError(t, err)

	released, err := h.manager.Retry(ctx, entry.ID)

	require.NoError(t, err)
	assert.Equal(t, model.DeadLetterStatusResolved, released.Status)
	assert.NotNil(t, released.ResolvedTimestamp)
	assert.Equal(t, retryResolutionNotes, released.ResolutionNotes)

	assert.Equal(t, 0, h.tracker.Current(AttemptKey{MessageID: entry.OriginalMessageID, ConsumerName: guardConsumer}))
	_, err = h.records.Get(ctx, entry.OriginalMessageID, guardConsumer)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeadLetterRetry_UnknownIDReturnsNotFound(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)

	_, err := h.manager.Retry(context.Background(), uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeadLetterRetry_SecondRetryReturnsNotFound(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)
	ctx := context.Background()
	entry := quarantine(t, h, "msg-double-retry")

	_, err := h.manager.Retry(ctx, entry.ID)
	require.NoError(t, err)

	_, err = h.manager.Retry(ctx, entry.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeadLetterMarkFailed_WritesOffEntry(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)
	ctx := context.Background()
	entry := quarantine(t, h, "msg-write-off")

	failed, err := h.manager.MarkFailed(ctx, entry.ID, "unparseable payload")

	require.NoError(t, err)
	assert.Equal(t, model.DeadLetterStatusFailed, failed.Status)
	assert.NotNil(t, failed.ResolvedTimestamp)
	assert.Equal(t, "unparseable payload", failed.ResolutionNotes)

	// A written-off entry can no longer be retried.
	_, err = h.manager.Retry(ctx, entry.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	stats, err := h.manager.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FailedMessages)
	assert.Zero(t, stats.PendingMessages)
}

func TestDeadLetterList_FiltersByStatus(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)
	ctx := context.Background()
	first := quarantine(t, h, "msg-list-1")
	quarantine(t, h, "msg-list-2")

	_, err := h.manager.Retry(ctx, first.ID)
	require.NoError(t, err)

	pending, err := h.manager.List(ctx, model.DeadLetterStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-list-2", pending[0].OriginalMessageID)

	all, err := h.manager.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeadLetterStats_CountsPerStatus(t *testing.T) {
	h := newTestHarness(guardConsumer, 3)
	ctx := context.Background()
	first := quarantine(t, h, "msg-stats-1")
	quarantine(t, h, "msg-stats-2")

	_, err := h.manager.Retry(ctx, first.ID)
	require.NoError(t, err)

	stats, err := h.manager.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMessages)
	assert.Equal(t, int64(1), stats.PendingMessages)
	assert.Equal(t, int64(1), stats.ResolvedMessages)
	require.NotNil(t, stats.OldestPendingAge)
	assert.GreaterOrEqual(t, *stats.OldestPendingAge, time.Duration(0))
}
