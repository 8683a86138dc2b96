package usecase

import (
	"context"

	"github.com/google/uuid"

	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
)

// BusinessFunc executes the business effect of one admitted message.
// Implementations must return an error on any failure; the orchestrator
// decides between redelivery and quarantine.
type BusinessFunc func(ctx context.Context, msg model.OrderMessage) (model.ProcessResult, error)

// OrderProcessor is the default business function: it persists one order per
// admitted message.
type OrderProcessor struct {
	orders storage.OrderRepo
}

// NewOrderProcessor creates an order processor backed by the order store.
func NewOrderProcessor(orders storage.OrderRepo) *OrderProcessor {
	return &OrderProcessor{orders: orders}
}

// Process creates and persists the order for a message.
func (p *OrderProcessor) Process(ctx context.Context, msg model.OrderMessage) (model.ProcessResult, error) {
	order := model.Order{
		ID:           uuid.New(),
		CustomerName: msg.CustomerName,
		Amount:       msg.Amount,
		Status:       model.OrderStatusCompleted,
	}

	if err := p.orders.Save(ctx, order); err != nil {
		return model.ProcessResult{Success: false, Message: err.Error()}, err
	}

	return model.ProcessResult{
		Success: true,
		Message: model.OrderResult(order.ID.String()),
		OrderID: order.ID.String(),
	}, nil
}
