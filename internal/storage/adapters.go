package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
)

// RecordRepoAdapter adapts the PostgresRepo to the RecordRepo interface
type RecordRepoAdapter struct {
	postgres *PostgresRepo
}

// NewRecordRepoAdapter creates a new record repository adapter
func NewRecordRepoAdapter(postgres *PostgresRepo) RecordRepo {
	return &RecordRepoAdapter{postgres: postgres}
}

// TryClaim attempts the atomic claim insert
func (a *RecordRepoAdapter) TryClaim(ctx context.Context, messageID, consumerName string) (bool, *model.ProcessingRecord, error) {
	return a.postgres.TryClaimRecord(ctx, messageID, consumerName)
}

// Get fetches a record
func (a *RecordRepoAdapter) Get(ctx context.Context, messageID, consumerName string) (*model.ProcessingRecord, error) {
	return a.postgres.GetRecord(ctx, messageID, consumerName)
}

// MarkProcessed finalizes a record with its result
func (a *RecordRepoAdapter) MarkProcessed(ctx context.Context, messageID, consumerName, result string) error {
	return a.postgres.MarkRecordProcessed(ctx, messageID, consumerName, result)
}

// Reset removes a claim
func (a *RecordRepoAdapter) Reset(ctx context.Context, messageID, consumerName string) error {
	return a.postgres.ResetRecord(ctx, messageID, consumerName)
}

// CountProcessed counts processed records for a consumer
func (a *RecordRepoAdapter) CountProcessed(ctx context.Context, consumerName string) (int64, error) {
	return a.postgres.CountProcessedRecords(ctx, consumerName)
}

// OldestClaimAge returns the age of the oldest live claim
func (a *RecordRepoAdapter) OldestClaimAge(ctx context.Context, consumerName string) (*time.Duration, error) {
	return a.postgres.OldestClaimAge(ctx, consumerName)
}

func (a *RecordRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// DeadLetterRepoAdapter adapts the PostgresRepo to the DeadLetterRepo interface
type DeadLetterRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDeadLetterRepoAdapter creates a new dead-letter repository adapter
func NewDeadLetterRepoAdapter(postgres *PostgresRepo) DeadLetterRepo {
	return &DeadLetterRepoAdapter{postgres: postgres}
}

// TryAdmit attempts the idempotent quarantine insert
func (a *DeadLetterRepoAdapter) TryAdmit(ctx context.Context, entry model.DeadLetterEntry) (bool, error) {
	return a.postgres.TryAdmitDeadLetter(ctx, entry)
}

// GetPending fetches the pending entry for a message
func (a *DeadLetterRepoAdapter) GetPending(ctx context.Context, messageID string) (*model.DeadLetterEntry, error) {
	return a.postgres.GetPendingDeadLetter(ctx, messageID)
}

// Get fetches an entry by id
func (a *DeadLetterRepoAdapter) Get(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	return a.postgres.GetDeadLetter(ctx, id)
}

// List lists entries by status
func (a *DeadLetterRepoAdapter) List(ctx context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error) {
	return a.postgres.ListDeadLetters(ctx, status)
}

// Resolve transitions a pending entry to resolved
func (a *DeadLetterRepoAdapter) Resolve(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	return a.postgres.ResolveDeadLetter(ctx, id, notes)
}

// MarkFailed transitions a pending entry to failed
func (a *DeadLetterRepoAdapter) MarkFailed(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	return a.postgres.MarkDeadLetterFailed(ctx, id, notes)
}

// Stats aggregates dead-letter counts
func (a *DeadLetterRepoAdapter) Stats(ctx context.Context) (model.DeadLetterStats, error) {
	return a.postgres.DeadLetterStats(ctx)
}

func (a *DeadLetterRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// DuplicateRepoAdapter adapts the PostgresRepo to the DuplicateRepo interface
type DuplicateRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDuplicateRepoAdapter creates a new duplicate-attempt repository adapter
func NewDuplicateRepoAdapter(postgres *PostgresRepo) DuplicateRepo {
	return &DuplicateRepoAdapter{postgres: postgres}
}

// Append records a duplicate attempt
func (a *DuplicateRepoAdapter) Append(ctx context.Context, attempt model.DuplicateAttempt) error {
	return a.postgres.AppendDuplicateAttempt(ctx, attempt)
}

// Count counts audited duplicates for a consumer
func (a *DuplicateRepoAdapter) Count(ctx context.Context, consumerName string) (int64, error) {
	return a.postgres.CountDuplicateAttempts(ctx, consumerName)
}

func (a *DuplicateRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// OrderRepoAdapter adapts the PostgresRepo to the OrderRepo interface
type OrderRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOrderRepoAdapter creates a new order repository adapter
func NewOrderRepoAdapter(postgres *PostgresRepo) OrderRepo {
	return &OrderRepoAdapter{postgres: postgres}
}

// Save persists an order
func (a *OrderRepoAdapter) Save(ctx context.Context, order model.Order) error {
	return a.postgres.SaveOrder(ctx, order)
}

// List lists orders
func (a *OrderRepoAdapter) List(ctx context.Context) ([]model.Order, error) {
	return a.postgres.ListOrders(ctx)
}

// Count counts orders
func (a *OrderRepoAdapter) Count(ctx context.Context) (int64, error) {
	return a.postgres.CountOrders(ctx)
}

func (a *OrderRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}
