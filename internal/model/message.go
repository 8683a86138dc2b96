package model

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"gitlab.com/nortide/api/order-idempotency-service/pkg/utils"
)

// OrderMessage is the wire payload consumed from the orders subject. The
// MessageID is the producer-assigned identity used for deduplication, not the
// broker sequence.
type OrderMessage struct {
	MessageID    string    `json:"message_id" validate:"required"`
	CustomerName string    `json:"customer_name" validate:"required"`
	Amount       float64   `json:"amount" validate:"gte=0"`
	Timestamp    time.Time `json:"timestamp"`
}

// Snapshot serializes the payload for storage alongside a dead-letter entry.
func (m OrderMessage) Snapshot() datatypes.JSON {
	return datatypes.JSON(utils.MustMarshalJSON(m))
}

// MessageMetadata carries broker-level delivery details into processing.
type MessageMetadata struct {
	MessageID    string
	Subject      string
	StreamSeq    uint64
	ConsumerSeq  uint64
	NumDelivered uint64
	Timestamp    time.Time
}

// ProcessResult is the outcome of submitting one delivery for processing.
type ProcessResult struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message"`
	OrderID   string `json:"order_id,omitempty"`
}

const orderResultPrefix = "OrderId: "

// OrderResult formats the durable result string stored on a processed record.
func OrderResult(orderID string) string {
	return fmt.Sprintf("%s%s", orderResultPrefix, orderID)
}

// OrderIDFromResult extracts the order id back out of a stored result string.
// It returns the empty string when the result carries no order id.
func OrderIDFromResult(result string) string {
	if strings.HasPrefix(result, orderResultPrefix) {
		return strings.TrimPrefix(result, orderResultPrefix)
	}
	return ""
}
