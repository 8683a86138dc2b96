package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
)

// RecordRepo defines idempotency record storage operations
type RecordRepo interface {
	TryClaim(ctx context.Context, messageID, consumerName string) (bool, *model.ProcessingRecord, error)
	Get(ctx context.Context, messageID, consumerName string) (*model.ProcessingRecord, error)
	MarkProcessed(ctx context.Context, messageID, consumerName, result string) error
	Reset(ctx context.Context, messageID, consumerName string) error
	CountProcessed(ctx context.Context, consumerName string) (int64, error)
	OldestClaimAge(ctx context.Context, consumerName string) (*time.Duration, error)
	Close(ctx context.Context) error
}

// DeadLetterRepo defines dead-letter storage operations
type DeadLetterRepo interface {
	TryAdmit(ctx context.Context, entry model.DeadLetterEntry) (bool, error)
	GetPending(ctx context.Context, messageID string) (*model.DeadLetterEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DeadLetterEntry, error)
	List(ctx context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error)
	Resolve(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error)
	MarkFailed(ctx context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error)
	Stats(ctx context.Context) (model.DeadLetterStats, error)
	Close(ctx context.Context) error
}

// DuplicateRepo defines duplicate-attempt audit storage operations
type DuplicateRepo interface {
	Append(ctx context.Context, attempt model.DuplicateAttempt) error
	Count(ctx context.Context, consumerName string) (int64, error)
	Close(ctx context.Context) error
}

// OrderRepo defines order storage operations
type OrderRepo interface {
	Save(ctx context.Context, order model.Order) error
	List(ctx context.Context) ([]model.Order, error)
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
