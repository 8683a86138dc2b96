package usecase

import (
	"context"

	"gitlab.com/nortide/api/order-idempotency-service/internal/identity"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
)

// StatsService assembles the aggregate processing snapshot.
type StatsService struct {
	records      storage.RecordRepo
	duplicates   storage.DuplicateRepo
	orders       storage.OrderRepo
	deadLetters  storage.DeadLetterRepo
	consumerName string
}

// NewStatsService creates a stats service scoped to one consumer identity.
func NewStatsService(
	records storage.RecordRepo,
	duplicates storage.DuplicateRepo,
	orders storage.OrderRepo,
	deadLetters storage.DeadLetterRepo,
	consumerName string,
) *StatsService {
	return &StatsService{
		records:      records,
		duplicates:   duplicates,
		orders:       orders,
		deadLetters:  deadLetters,
		consumerName: consumerName,
	}
}

// GetStatistics returns processed, duplicate and order counts plus the
// dead-letter breakdown. Counts are read independently, so the snapshot is
// approximate under concurrent writes. A consumer identity on the context
// overrides the configured one.
func (s *StatsService) GetStatistics(ctx context.Context) (model.ProcessingStats, error) {
	consumerName := identity.ConsumerFromContextOr(ctx, s.consumerName)

	processed, err := s.records.CountProcessed(ctx, consumerName)
	if err != nil {
		return model.ProcessingStats{}, err
	}

	duplicates, err := s.duplicates.Count(ctx, consumerName)
	if err != nil {
		return model.ProcessingStats{}, err
	}

	orders, err := s.orders.Count(ctx)
	if err != nil {
		return model.ProcessingStats{}, err
	}

	claimAge, err := s.records.OldestClaimAge(ctx, consumerName)
	if err != nil {
		return model.ProcessingStats{}, err
	}

	dlStats, err := s.deadLetters.Stats(ctx)
	if err != nil {
		return model.ProcessingStats{}, err
	}

	return model.ProcessingStats{
		TotalProcessed:     processed,
		DuplicatesDetected: duplicates,
		SuccessfulOrders:   orders,
		OldestClaimAge:     claimAge,
		DeadLetter:         dlStats,
	}, nil
}
