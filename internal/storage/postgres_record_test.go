package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
)

func TestTryClaimRecord_Inserted(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "processing_records"`).
		WithArgs(testMessageID, testConsumer, string(model.RecordStatusClaimed), "", AnyTime{}, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	inserted, record, err := repo.TryClaimRecord(ctx, testMessageID, testConsumer)

	assert.NoError(t, err)
	assert.True(t, inserted)
	require.NotNil(t, record)
	assert.Equal(t, testMessageID, record.MessageID)
	assert.Equal(t, model.RecordStatusClaimed, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryClaimRecord_LostRace(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	processedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "processing_records"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "processing_records_pkey"})
	mock.ExpectRollback()

	rows := sqlmock.NewRows([]string{"message_id", "consumer_name", "status", "result", "claimed_at", "processed_at"}).
		AddRow(testMessageID, testConsumer, string(model.RecordStatusProcessed), "OrderId: abc", processedAt, processedAt)
	mock.ExpectQuery(`SELECT \* FROM "processing_records"`).
		WillReturnRows(rows)

	inserted, record, err := repo.TryClaimRecord(ctx, testMessageID, testConsumer)

	assert.NoError(t, err)
	assert.False(t, inserted)
	require.NotNil(t, record)
	assert.True(t, record.IsProcessed())
	assert.Equal(t, "OrderId: abc", record.Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryClaimRecord_LostRaceThenReset(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "processing_records"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	// Claim was deleted between the failed insert and the follow-up read.
	mock.ExpectQuery(`SELECT \* FROM "processing_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}))

	inserted, record, err := repo.TryClaimRecord(ctx, testMessageID, testConsumer)

	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord_NotFound(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectQuery(`SELECT \* FROM "processing_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}))

	record, err := repo.GetRecord(ctx, testMessageID, testConsumer)

	assert.Nil(t, record)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRecordProcessed_Success(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "processing_records" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkRecordProcessed(ctx, testMessageID, testConsumer, "OrderId: abc")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRecordProcessed_MissingRow(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "processing_records" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkRecordProcessed(ctx, testMessageID, testConsumer, "OrderId: abc")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRecord_Success(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "processing_records"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ResetRecord(ctx, testMessageID, testConsumer)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRecord_MissingRowIsNotAnError(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "processing_records"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.ResetRecord(ctx, testMessageID, testConsumer)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountProcessedRecords(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "processing_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := repo.CountProcessedRecords(ctx, testConsumer)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestClaimAge_LiveClaim(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	claimedAt := time.Now().UTC().Add(-90 * time.Second)

	mock.ExpectQuery(`SELECT min\(claimed_at\) FROM "processing_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(claimedAt))

	age, err := repo.OldestClaimAge(ctx, testConsumer)

	assert.NoError(t, err)
	require.NotNil(t, age)
	assert.GreaterOrEqual(t, *age, 90*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOldestClaimAge_NoLiveClaims(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectQuery(`SELECT min\(claimed_at\) FROM "processing_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	age, err := repo.OldestClaimAge(ctx, testConsumer)

	assert.NoError(t, err)
	assert.Nil(t, age)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecord_DatabaseError(t *testing.T) {
	mockDB, mock, repo := setupMockDB(t)
	defer mockDB.Close()

	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))

	mock.ExpectQuery(`SELECT \* FROM "processing_records"`).
		WillReturnError(errors.New("permission denied for table processing_records"))

	record, err := repo.GetRecord(ctx, testMessageID, testConsumer)

	assert.Nil(t, record)
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.NoError(t, mock.ExpectationsWereMet())
}
