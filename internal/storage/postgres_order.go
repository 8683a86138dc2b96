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

// SaveOrder persists the order produced by a successfully processed message.
func (r *PostgresRepo) SaveOrder(ctx context.Context, order model.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = utils.Now()
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&order)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "SaveOrder Commit", operation)
	observer.ObserveDbOperationDuration("save", "order", time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to save order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return err
	}

	logger.FromContext(ctx).Info("Order saved",
		zap.String("order_id", order.ID.String()),
		zap.String("customer", order.CustomerName))
	return nil
}

// ListOrders returns orders newest first.
func (r *PostgresRepo) ListOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order

	operation := func() error {
		return r.db.WithContext(ctx).
			Order("created_at desc").
			Find(&orders).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListOrders", operation)
	observer.ObserveDbOperationDuration("list", "order", time.Since(startTime), err)

	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return orders, nil
}

// CountOrders returns the number of persisted orders.
func (r *PostgresRepo) CountOrders(ctx context.Context) (int64, error) {
	var count int64

	operation := func() error {
		return r.db.WithContext(ctx).
			Model(&model.Order{}).
			Count(&count).Error
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "CountOrders", operation)
	observer.ObserveDbOperationDuration("count", "order", time.Since(startTime), err)

	if err != nil {
		return 0, checkConstraintViolation(err)
	}
	return count, nil
}
