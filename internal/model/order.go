package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus describes the state of a persisted order.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the business entity produced by successfully processing an order
// message. Exactly-once semantics mean one message yields at most one order.
type Order struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerName string      `gorm:"size:255;not null" json:"customer_name"`
	Amount       float64     `gorm:"not null" json:"amount"`
	Status       OrderStatus `gorm:"size:32;not null;default:completed" json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}
