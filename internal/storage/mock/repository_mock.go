package mock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
)

// --- RecordRepo Mock ---

// RecordRepoMock mocks the RecordRepo interface
type RecordRepoMock struct {
	mock.Mock
}

// TryClaim mocks the TryClaim method
func (m *RecordRepoMock) TryClaim(ctx context.Context, messageID, consumerName string) (bool, *model.ProcessingRecord, error) {
	args := m.Called(ctx, messageID, consumerName)
	var record *model.ProcessingRecord
	if args.Get(1) != nil {
		record = args.Get(1).(*model.ProcessingRecord)
	}
	return args.Bool(0), record, args.Error(2)
}

// Get mocks the Get method
func (m *RecordRepoMock) Get(ctx context.Context, messageID, consumerName string) (*model.ProcessingRecord, error) {
	args := m.Called(ctx, messageID, consumerName)
	var record *model.ProcessingRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*model.ProcessingRecord)
	}
	return record, args.Error(1)
}

// MarkProcessed mocks the MarkProcessed method
func (m *RecordRepoMock) MarkProcessed(ctx context.Context, messageID, consumerName, result string) error {
	args := m.Called(ctx, messageID, consumerName, result)
	return args.Error(0)
}

// Reset mocks the Reset method
func (m *RecordRepoMock) Reset(ctx context.Context, messageID, consumerName string) error {
	args := m.Called(ctx, messageID, consumerName)
	return args.Error(0)
}

// CountProcessed mocks the CountProcessed method
func (m *RecordRepoMock) CountProcessed(ctx context.Context, consumerName string) (int64, error) {
	args := m.Called(ctx, consumerName)
	return args.Get(0).(int64), args.Error(1)
}

// OldestClaimAge mocks the OldestClaimAge method
func (m *RecordRepoMock) OldestClaimAge(ctx context.Context, consumerName string) (*time.Duration, error) {
	args := m.Called(ctx, consumerName)
	var age *time.Duration
	if args.Get(0) != nil {
		age = args.Get(0).(*time.Duration)
	}
	return age, args.Error(1)
}

// Close mocks the Close method
func (m *RecordRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DeadLetterRepo Mock ---

// DeadLetterRepoMock mocks the DeadLetterRepo interface
type DeadLetterRepoMock struct {
	mock.Mock
}

// TryAdmit mocks the TryAdmit method
func (m *DeadLetterRepoMock) TryAdmit(ctx context.Context, entry model.DeadLetterEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

// GetPending mocks the GetPending method
func (m *DeadLetterRepoMock) GetPending(ctx context.Context, messageID string) (*model.DeadLetterEntry, error) {
	args := m.Called(ctx, messageID)
	var entry *model.DeadLetterEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*model.DeadLetterEntry)
	}
	return entry, args.Error(1)
}

// Get mocks the Get method
func (m *DeadLetterRepoMock) Get(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	args := m.Called(ctx, id)
	var entry *model.DeadLetterEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*model.DeadLetterEntry)
	}
	return entry, args.Error(1)
}

// List mocks the List method
func (m *DeadLetterRepoMock) List(ctx context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error) {
	args := m.Called(ctx, status)
	var entries []model.DeadLetterEntry
	if args.Get(0) != nil {
		entries = args.Get(0).([]model.DeadLetterEntry)
	}
	return entries, args.Error(1)
}

// Resolve mocks the Resolve method
func (m *DeadLetterRepoMock) Resolve(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	args := m.Called(ctx, id, notes)
	var entry *model.DeadLetterEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*model.DeadLetterEntry)
	}
	return entry, args.Error(1)
}

// MarkFailed mocks the MarkFailed method
func (m *DeadLetterRepoMock) MarkFailed(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	args := m.Called(ctx, id, notes)
	var entry *model.DeadLetterEntry
	if args.Get(0) != nil {
		entry = args.Get(0).(*model.DeadLetterEntry)
	}
	return entry, args.Error(1)
}

// Stats mocks the Stats method
func (m *DeadLetterRepoMock) Stats(ctx context.Context) (model.DeadLetterStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.DeadLetterStats), args.Error(1)
}

// Close mocks the Close method
func (m *DeadLetterRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- DuplicateRepo Mock ---

// DuplicateRepoMock mocks the DuplicateRepo interface
type DuplicateRepoMock struct {
	mock.Mock
}

// Append mocks the Append method
func (m *DuplicateRepoMock) Append(ctx context.Context, attempt model.DuplicateAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

// Count mocks the Count method
func (m *DuplicateRepoMock) Count(ctx context.Context, consumerName string) (int64, error) {
	args := m.Called(ctx, consumerName)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *DuplicateRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- OrderRepo Mock ---

// OrderRepoMock mocks the OrderRepo interface
type OrderRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *OrderRepoMock) Save(ctx context.Context, order model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// List mocks the List method
func (m *OrderRepoMock) List(ctx context.Context) ([]model.Order, error) {
	args := m.Called(ctx)
	var orders []model.Order
	if args.Get(0) != nil {
		orders = args.Get(0).([]model.Order)
	}
	return orders, args.Error(1)
}

// Count mocks the Count method
func (m *OrderRepoMock) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *OrderRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
